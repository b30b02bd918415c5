// Package reminder schedules customer notifications for submitted bookings as
// asynq tasks and processes them in a worker.
package reminder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task types.
const (
	TypeBookingConfirmed    = "booking:confirmed"
	TypeAppointmentReminder = "booking:reminder"
)

// Payload describes the booking a task is about.
type Payload struct {
	BookingID       string `json:"booking_id"`
	PaymentCode     string `json:"payment_code"`
	ServiceName     string `json:"service_name"`
	FullName        string `json:"full_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	AppointmentDate string `json:"appointment_date,omitempty"`
	TimeSlot        string `json:"time_slot,omitempty"`
	Postal          bool   `json:"postal"`
	Total           string `json:"total"`
}

// Scheduler enqueues booking notifications.
type Scheduler interface {
	ScheduleConfirmation(ctx context.Context, p Payload) error
	ScheduleReminder(ctx context.Context, p Payload, at time.Time) error
}

// NewConfirmationTask builds the task sent right after submission.
func NewConfirmationTask(p Payload) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{asynq.MaxRetry(5), asynq.TaskID("confirmed:" + p.PaymentCode)}
	return asynq.NewTask(TypeBookingConfirmed, b), opts, nil
}

// NewReminderTask builds the reminder task processed at fireAt.
func NewReminderTask(p Payload, fireAt time.Time) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, nil, err
	}
	opts := []asynq.Option{
		asynq.ProcessAt(fireAt),
		asynq.MaxRetry(3),
		asynq.TaskID("reminder:" + p.PaymentCode),
	}
	return asynq.NewTask(TypeAppointmentReminder, b), opts, nil
}

// AsynqScheduler enqueues tasks in Redis.
type AsynqScheduler struct {
	client *asynq.Client
}

// NewAsynqScheduler connects to the Redis instance at redisURL
// (redis://[:password@]host:port[/db]).
func NewAsynqScheduler(redisURL string) (*AsynqScheduler, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	return &AsynqScheduler{client: asynq.NewClient(opt)}, nil
}

func (s *AsynqScheduler) ScheduleConfirmation(ctx context.Context, p Payload) error {
	task, opts, err := NewConfirmationTask(p)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, task, opts)
}

func (s *AsynqScheduler) ScheduleReminder(ctx context.Context, p Payload, at time.Time) error {
	task, opts, err := NewReminderTask(p, at)
	if err != nil {
		return err
	}
	return s.enqueue(ctx, task, opts)
}

// enqueue treats a task id conflict as success so resubmission does not
// produce duplicate messages.
func (s *AsynqScheduler) enqueue(ctx context.Context, task *asynq.Task, opts []asynq.Option) error {
	if _, err := s.client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		return fmt.Errorf("enqueue %s: %w", task.Type(), err)
	}
	return nil
}

func (s *AsynqScheduler) Close() error { return s.client.Close() }

// Noop drops every task. It is used when Redis is not configured.
type Noop struct{}

func (Noop) ScheduleConfirmation(context.Context, Payload) error        { return nil }
func (Noop) ScheduleReminder(context.Context, Payload, time.Time) error { return nil }
