package reminder

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/genelab/dnabooking/internal/platform/notification"
)

// Worker turns booking tasks into customer notifications.
type Worker struct {
	notifier *notification.Manager
	logger   zerolog.Logger
}

func NewWorker(notifier *notification.Manager, logger zerolog.Logger) *Worker {
	return &Worker{notifier: notifier, logger: logger.With().Str("component", "reminder-worker").Logger()}
}

// Mux routes task types to their handlers.
func (w *Worker) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeBookingConfirmed, w.HandleConfirmed)
	mux.HandleFunc(TypeAppointmentReminder, w.HandleReminder)
	return mux
}

func decode(t *asynq.Task) (Payload, error) {
	var p Payload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, fmt.Errorf("invalid %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return p, nil
}

func (w *Worker) HandleConfirmed(ctx context.Context, t *asynq.Task) error {
	p, err := decode(t)
	if err != nil {
		w.logger.Error().Err(err).Msg("dropping task")
		return err
	}
	appointment := "sample sent by post"
	if !p.Postal {
		appointment = p.AppointmentDate + " " + p.TimeSlot
	}
	_, err = w.notifier.SendFromTemplate(ctx, notification.ChannelEmail, notification.TemplateBookingConfirmed, p.Email,
		map[string]string{
			"name":         p.FullName,
			"service":      p.ServiceName,
			"payment_code": p.PaymentCode,
			"total":        p.Total,
			"appointment":  appointment,
		})
	if err != nil {
		w.logger.Warn().Err(err).Str("payment_code", p.PaymentCode).Msg("confirmation not sent")
		return err
	}
	w.logger.Info().Str("payment_code", p.PaymentCode).Msg("confirmation sent")
	return nil
}

func (w *Worker) HandleReminder(ctx context.Context, t *asynq.Task) error {
	p, err := decode(t)
	if err != nil {
		w.logger.Error().Err(err).Msg("dropping task")
		return err
	}
	data := map[string]string{
		"name":         p.FullName,
		"service":      p.ServiceName,
		"payment_code": p.PaymentCode,
		"date":         p.AppointmentDate,
		"slot":         p.TimeSlot,
	}
	tpl := notification.TemplateAppointmentReminder
	if p.Postal {
		tpl = notification.TemplateSampleDispatch
	}
	if _, err := w.notifier.SendFromTemplate(ctx, notification.ChannelEmail, tpl, p.Email, data); err != nil {
		w.logger.Warn().Err(err).Str("payment_code", p.PaymentCode).Msg("reminder not sent")
		return err
	}
	if p.Phone != "" {
		if _, err := w.notifier.SendFromTemplate(ctx, notification.ChannelSMS, tpl, p.Phone, data); err != nil {
			// email already went out; do not retry the whole task for SMS
			w.logger.Warn().Err(err).Str("payment_code", p.PaymentCode).Msg("reminder sms not sent")
		}
	}
	w.logger.Info().Str("payment_code", p.PaymentCode).Str("template", tpl).Msg("reminder sent")
	return nil
}

// Run processes tasks from Redis until ctx is cancelled.
func (w *Worker) Run(ctx context.Context, redisURL string, concurrency int) error {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return fmt.Errorf("parse redis url: %w", err)
	}
	srv := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{"default": 1},
		Logger:      asynqLogger{w.logger},
	})
	if err := srv.Start(w.Mux()); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	<-ctx.Done()
	srv.Shutdown()
	return nil
}

// asynqLogger routes asynq's logs through zerolog.
type asynqLogger struct{ l zerolog.Logger }

func (a asynqLogger) Debug(args ...interface{}) { a.l.Debug().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Info(args ...interface{})  { a.l.Info().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Warn(args ...interface{})  { a.l.Warn().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Error(args ...interface{}) { a.l.Error().Msg(fmt.Sprint(args...)) }
func (a asynqLogger) Fatal(args ...interface{}) { a.l.Fatal().Msg(fmt.Sprint(args...)) }
