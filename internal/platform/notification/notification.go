// Package notification fans surveillance events out to message brokers.
// Outbreak warnings and report-archive notices are rendered from templates,
// published per channel, kept in a bounded in-memory history, and exposed
// over Echo HTTP handlers.
package notification

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Channels
// ---------------------------------------------------------------------------

// Channel names the fan-out target of a notification.
type Channel string

const (
	ChannelAlert   Channel = "alert"
	ChannelArchive Channel = "archive"
)

// Template IDs registered by default.
const (
	TemplateOutbreakWarning = "outbreak-warning"
	TemplateReportArchived  = "report-archived"
)

const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// DefaultHistory is the number of notifications kept in memory.
const DefaultHistory = 500

var (
	ErrNotFound  = errors.New("notification not found")
	ErrNotFailed = errors.New("notification is not in failed status")
)

// ---------------------------------------------------------------------------
// Notification
// ---------------------------------------------------------------------------

// Notification is a single outbound event. Its JSON form is the broker
// payload.
type Notification struct {
	ID           string            `json:"id"`
	Channel      Channel           `json:"channel"`
	Key          string            `json:"key,omitempty"`
	Subject      string            `json:"subject"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"data,omitempty"`
	Status       string            `json:"status"`
	Attempts     int               `json:"attempts"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// Publisher delivers an encoded notification to one destination.
type Publisher interface {
	Publish(ctx context.Context, key string, payload []byte) error
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template defines a reusable notification template.
type Template struct {
	ID      string  `json:"id"`
	Name    string  `json:"name"`
	Subject string  `json:"subject"`
	Body    string  `json:"body"`
	Channel Channel `json:"channel"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{
		templates: make(map[string]*Template),
	}
	e.registerBuiltIn()
	return e
}

func (e *TemplateEngine) registerBuiltIn() {
	builtIn := []Template{
		{
			ID:      TemplateOutbreakWarning,
			Name:    "Outbreak Warning",
			Subject: "Outbreak warning: {{disease}}",
			Body:    "{{message}} ({{previous}} -> {{current}} cases)",
			Channel: ChannelAlert,
		},
		{
			ID:      TemplateReportArchived,
			Name:    "Report Archived",
			Subject: "Report archived: {{report}}",
			Body:    "{{file_name}} ({{content_type}}, {{size}} bytes) stored as {{blob_id}}",
			Channel: ChannelArchive,
		},
	}
	for i := range builtIn {
		t := builtIn[i]
		e.templates[t.ID] = &t
	}
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

func (e *TemplateEngine) lookup(templateID string) (Template, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.templates[templateID]
	if !ok {
		return Template{}, false
	}
	return *t, true
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	t, ok := e.lookup(templateID)
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager renders, publishes and remembers notifications.
type Manager struct {
	templates  *TemplateEngine
	logger     zerolog.Logger
	history    int
	publishers map[Channel]Publisher

	mu            sync.RWMutex
	notifications map[string]*Notification
	order         []string
}

// NewManager builds a Manager whose channels all start on a LogPublisher.
func NewManager(tpl *TemplateEngine, logger zerolog.Logger) *Manager {
	return &Manager{
		templates: tpl,
		logger:    logger,
		history:   DefaultHistory,
		publishers: map[Channel]Publisher{
			ChannelAlert:   NewLogPublisher(logger, ChannelAlert),
			ChannelArchive: NewLogPublisher(logger, ChannelArchive),
		},
		notifications: make(map[string]*Notification),
	}
}

// SetPublisher routes a channel to p. Call before serving traffic.
func (m *Manager) SetPublisher(ch Channel, p Publisher) {
	m.publishers[ch] = p
}

// AddPublisher fans a channel out to p alongside its current publisher.
func (m *Manager) AddPublisher(ch Channel, p Publisher) {
	if cur, ok := m.publishers[ch]; ok && cur != nil {
		if f, ok := cur.(Fanout); ok {
			m.publishers[ch] = append(f, p)
			return
		}
		m.publishers[ch] = Fanout{cur, p}
		return
	}
	m.publishers[ch] = p
}

// SetHistory changes how many notifications are retained.
func (m *Manager) SetHistory(n int) {
	if n > 0 {
		m.history = n
	}
}

// Send publishes n on its channel and records the outcome.
func (m *Manager) Send(ctx context.Context, n *Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	n.CreatedAt = time.Now().UTC()
	n.Status = StatusPending

	sendErr := m.publish(ctx, n)
	m.mu.Lock()
	m.record(n, sendErr)
	m.remember(n)
	m.mu.Unlock()

	if sendErr != nil {
		m.logger.Warn().Err(sendErr).Str("notification_id", n.ID).Str("channel", string(n.Channel)).Msg("notification publish failed")
	}
	return sendErr
}

// Dispatch renders a template and sends the result on the template's channel.
func (m *Manager) Dispatch(ctx context.Context, templateID, key string, data map[string]string) (*Notification, error) {
	tpl, ok := m.templates.lookup(templateID)
	if !ok {
		return nil, fmt.Errorf("render template: template %q not found", templateID)
	}
	subject, body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	n := &Notification{
		Channel:      tpl.Channel,
		Key:          key,
		Subject:      subject,
		Body:         body,
		TemplateID:   templateID,
		TemplateData: data,
	}
	if err := m.Send(ctx, n); err != nil {
		return n, err
	}
	return n, nil
}

func (m *Manager) publish(ctx context.Context, n *Notification) error {
	p, ok := m.publishers[n.Channel]
	if !ok {
		return fmt.Errorf("no publisher for channel %q", n.Channel)
	}
	n.Attempts++
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	return p.Publish(ctx, n.Key, payload)
}

// record must be called with m.mu held.
func (m *Manager) record(n *Notification, sendErr error) {
	if sendErr != nil {
		n.Status = StatusFailed
		n.Error = sendErr.Error()
		return
	}
	n.Status = StatusSent
	n.Error = ""
	sentAt := time.Now().UTC()
	n.SentAt = &sentAt
}

// remember must be called with m.mu held. The oldest entries are evicted
// once the history limit is reached.
func (m *Manager) remember(n *Notification) {
	if _, exists := m.notifications[n.ID]; !exists {
		m.order = append(m.order, n.ID)
	}
	m.notifications[n.ID] = n
	for len(m.order) > m.history {
		delete(m.notifications, m.order[0])
		m.order = m.order[1:]
	}
}

// Get retrieves a notification by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n, nil
}

// List returns the newest notifications first, optionally restricted to one
// channel, up to limit.
func (m *Manager) List(_ context.Context, ch Channel, limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*Notification, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		n := m.notifications[m.order[i]]
		if ch != "" && n.Channel != ch {
			continue
		}
		result = append(result, n)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// Retry re-publishes a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) error {
	n, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	m.mu.RLock()
	status := n.Status
	m.mu.RUnlock()
	if status != StatusFailed {
		return fmt.Errorf("%w: %s (current: %s)", ErrNotFailed, id, status)
	}

	sendErr := m.publish(ctx, n)
	m.mu.Lock()
	m.record(n, sendErr)
	m.mu.Unlock()
	return sendErr
}

// Stats returns counts of retained notifications by status and by channel.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
		stats["channel:"+string(n.Channel)]++
	}
	return stats
}

// Channels lists the channels that have a publisher.
func (m *Manager) Channels() []Channel {
	out := make([]Channel, 0, len(m.publishers))
	for ch := range m.publishers {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
