package notification

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// LogPublisher writes notifications to the logger instead of a broker.
type LogPublisher struct {
	logger  zerolog.Logger
	channel Channel
}

func NewLogPublisher(logger zerolog.Logger, ch Channel) *LogPublisher {
	return &LogPublisher{logger: logger, channel: ch}
}

func (p *LogPublisher) Publish(_ context.Context, key string, payload []byte) error {
	p.logger.Info().
		Str("channel", string(p.channel)).
		Str("key", key).
		RawJSON("notification", payload).
		Msg("notification")
	return nil
}

// ---------------------------------------------------------------------------
// Mock Publisher (test double)
// ---------------------------------------------------------------------------

// PublishCall records a single call to Publish.
type PublishCall struct {
	Key     string
	Payload []byte
}

// MockPublisher records published messages. When Err is set every call fails.
type MockPublisher struct {
	mu    sync.Mutex
	calls []PublishCall
	Err   error
}

func (m *MockPublisher) Publish(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.calls = append(m.calls, PublishCall{Key: key, Payload: append([]byte(nil), payload...)})
	return nil
}

// Calls returns a copy of all recorded calls.
func (m *MockPublisher) Calls() []PublishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PublishCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// SetErr changes the failure mode under the lock.
func (m *MockPublisher) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

var errPublisherClosed = errors.New("publisher closed")
