package confirmation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/genelab/dnabooking/internal/domain/booking"
)

// DefaultSessionTTL bounds how long an abandoned confirmation is kept.
const DefaultSessionTTL = 30 * time.Minute

var (
	ErrSessionNotFound = errors.New("confirmation session not found or expired")
	ErrBusy            = errors.New("confirmation is already being processed")
)

// Session is the state of one confirmation dialog. It is discarded when the
// dialog is closed.
type Session struct {
	ID            string                `json:"id"`
	CustomerID    string                `json:"customer_id"`
	State         State                 `json:"state"`
	PaymentMethod booking.PaymentMethod `json:"payment_method,omitempty"`
	PaymentCode   string                `json:"payment_code,omitempty"`
	QRCodeURL     string                `json:"qr_code_url,omitempty"`
	Signature     string                `json:"signature,omitempty"`
	SignedAt      *time.Time            `json:"signed_at,omitempty"`
	PDFGenerated  bool                  `json:"pdf_generated"`
	Processing    bool                  `json:"processing"`
	Draft         *booking.Draft        `json:"draft"`
	Record        *booking.Record       `json:"record,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	UpdatedAt     time.Time             `json:"updated_at"`
}

// Step is the step number shown to the customer.
func (s *Session) Step() int { return StepNumber(s.State, s.PaymentMethod) }

// SessionStore keeps confirmation sessions between requests.
type SessionStore interface {
	Save(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Delete(ctx context.Context, id string) error
	// Acquire marks the session as processing and returns it. It fails with
	// ErrBusy when another request already holds it.
	Acquire(ctx context.Context, id string) (*Session, error)
	// Release clears the processing mark without saving other changes.
	Release(ctx context.Context, id string) error
}

func decodeSession(data []byte) (*Session, error) {
	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode confirmation session: %w", err)
	}
	return &s, nil
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore is a SessionStore for a single process. Sessions are stored
// encoded so callers never share them.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &MemoryStore{ttl: ttl, now: time.Now, sessions: make(map[string]memoryEntry)}
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode confirmation session: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = memoryEntry{data: data, expires: m.now().Add(m.ttl)}
	return nil
}

// load returns the live entry for id. Callers hold m.mu.
func (m *MemoryStore) load(id string) (*Session, error) {
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !m.now().Before(e.expires) {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	return decodeSession(e.data)
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(id)
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *MemoryStore) Acquire(_ context.Context, id string) (*Session, error) {
	return m.setProcessing(id, true)
}

func (m *MemoryStore) Release(_ context.Context, id string) error {
	_, err := m.setProcessing(id, false)
	return err
}

func (m *MemoryStore) setProcessing(id string, on bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if on && s.Processing {
		return nil, ErrBusy
	}
	s.Processing = on
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode confirmation session: %w", err)
	}
	m.sessions[id] = memoryEntry{data: data, expires: m.now().Add(m.ttl)}
	return s, nil
}

const redisKeyPrefix = "confirmation:session:"

// RedisStore keeps sessions in Redis as JSON with a sliding TTL, so any
// server instance can continue a confirmation.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode confirmation session: %w", err)
	}
	return r.client.Set(ctx, redisKey(s.ID), data, r.ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	data, err := r.client.Get(ctx, redisKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load confirmation session: %w", err)
	}
	return decodeSession(data)
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, redisKey(id)).Err()
}

func (r *RedisStore) Acquire(ctx context.Context, id string) (*Session, error) {
	return r.setProcessing(ctx, id, true)
}

func (r *RedisStore) Release(ctx context.Context, id string) error {
	var err error
	for i := 0; i < 3; i++ {
		if _, err = r.setProcessing(ctx, id, false); !errors.Is(err, ErrBusy) {
			return err
		}
	}
	return err
}

// setProcessing flips the processing flag inside an optimistic transaction.
// A concurrent write to the key aborts the transaction and reports ErrBusy.
func (r *RedisStore) setProcessing(ctx context.Context, id string, on bool) (*Session, error) {
	key := redisKey(id)
	var s *Session
	err := r.client.Watch(ctx, func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		s, err = decodeSession(data)
		if err != nil {
			return err
		}
		if on && s.Processing {
			return ErrBusy
		}
		s.Processing = on
		data, err = json.Marshal(s)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, r.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return nil, ErrBusy
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
