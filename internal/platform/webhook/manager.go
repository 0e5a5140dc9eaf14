package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/surveillance/internal/platform/notification"
)

// Headers set on every delivery.
const (
	HeaderSignature = "X-Webhook-Signature"
	HeaderID        = "X-Webhook-ID"
	HeaderTimestamp = "X-Webhook-Timestamp"
	HeaderChannel   = "X-Webhook-Channel"
)

// SignPayload is the hex HMAC-SHA256 of payload under secret.
func SignPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature accepts the signature with or without the "sha256=" prefix.
func VerifySignature(payload []byte, secret, signature string) bool {
	expected := SignPayload(payload, secret)
	return hmac.Equal([]byte(expected), []byte(strings.TrimPrefix(signature, "sha256=")))
}

type Option func(*Manager)

func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// Manager registers endpoints and posts notification payloads to them.
type Manager struct {
	store      Store
	httpClient *http.Client
	logger     zerolog.Logger
	now        func() time.Time
}

func NewManager(store Store, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		store:      store,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
		now:        time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func generateSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// ValidationError reports a bad registration request.
type ValidationError struct{ Message string }

func (e *ValidationError) Error() string { return e.Message }

func validateURL(raw string) error {
	if raw == "" {
		return &ValidationError{"url is required"}
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return &ValidationError{fmt.Sprintf("invalid url %q", raw)}
	}
	if s := strings.ToLower(u.Scheme); s != "http" && s != "https" {
		return &ValidationError{fmt.Sprintf("url scheme must be http or https, got %q", u.Scheme)}
	}
	return nil
}

func validateChannels(chs []string) error {
	if len(chs) == 0 {
		return &ValidationError{"at least one channel is required"}
	}
	for _, ch := range chs {
		switch notification.Channel(ch) {
		case notification.ChannelAlert, notification.ChannelArchive, "*":
		default:
			return &ValidationError{fmt.Sprintf("unknown channel %q", ch)}
		}
	}
	return nil
}

// Register stores a new active endpoint. An empty secret is generated.
func (m *Manager) Register(ctx context.Context, rawURL, secret, description string, channels []string) (*Endpoint, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}
	if err := validateChannels(channels); err != nil {
		return nil, err
	}
	if secret == "" {
		s, err := generateSecret()
		if err != nil {
			return nil, fmt.Errorf("generate secret: %w", err)
		}
		secret = s
	}
	ep := &Endpoint{
		ID:          uuid.New().String(),
		URL:         rawURL,
		Secret:      secret,
		Channels:    channels,
		Description: description,
		Status:      StatusActive,
		CreatedAt:   m.now().UTC(),
	}
	if err := m.store.CreateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

// SetStatus pauses or resumes an endpoint.
func (m *Manager) SetStatus(ctx context.Context, id, status string) (*Endpoint, error) {
	if status != StatusActive && status != StatusPaused {
		return nil, &ValidationError{fmt.Sprintf("status must be %q or %q", StatusActive, StatusPaused)}
	}
	ep, err := m.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	ep.Status = status
	if err := m.store.UpdateEndpoint(ctx, ep); err != nil {
		return nil, err
	}
	return ep, nil
}

func subscribes(ep *Endpoint, ch notification.Channel) bool {
	for _, c := range ep.Channels {
		if c == "*" || notification.Channel(c) == ch {
			return true
		}
	}
	return false
}

// Deliver posts payload to every active endpoint subscribed to ch. The
// returned error joins the failures.
func (m *Manager) Deliver(ctx context.Context, ch notification.Channel, key string, payload []byte) error {
	endpoints, err := m.store.ListEndpoints(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, ep := range endpoints {
		if ep.Status != StatusActive || !subscribes(ep, ch) {
			continue
		}
		d := m.post(ctx, ep, ch, key, payload, 1)
		if d.Status != DeliverySuccess {
			errs = append(errs, fmt.Errorf("webhook %s: %s", ep.ID, d.Error))
		}
	}
	return errors.Join(errs...)
}

func (m *Manager) post(ctx context.Context, ep *Endpoint, ch notification.Channel, key string, payload []byte, attempt int) *Delivery {
	now := m.now().UTC()
	d := &Delivery{
		ID:         uuid.New().String(),
		EndpointID: ep.ID,
		Channel:    string(ch),
		Key:        key,
		Payload:    payload,
		Attempt:    attempt,
		CreatedAt:  now,
	}
	defer func() {
		if err := m.store.RecordDelivery(ctx, d); err != nil {
			m.logger.Warn().Err(err).Str("webhook", ep.ID).Msg("record webhook delivery failed")
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.URL, bytes.NewReader(payload))
	if err != nil {
		d.Status, d.Error = DeliveryFailed, err.Error()
		return d
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, "sha256="+SignPayload(payload, ep.Secret))
	req.Header.Set(HeaderID, d.ID)
	req.Header.Set(HeaderTimestamp, now.Format(time.RFC3339))
	req.Header.Set(HeaderChannel, string(ch))

	start := time.Now()
	resp, err := m.httpClient.Do(req)
	d.Duration = time.Since(start)
	if err != nil {
		d.Status, d.Error = DeliveryFailed, err.Error()
		return d
	}
	defer resp.Body.Close()

	d.StatusCode = resp.StatusCode
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	d.ResponseBody = string(body)
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.Status = DeliverySuccess
	} else {
		d.Status = DeliveryFailed
		d.Error = fmt.Sprintf("non-2xx response: %d", resp.StatusCode)
	}
	return d
}

// Retry re-posts a recorded delivery to its endpoint.
func (m *Manager) Retry(ctx context.Context, deliveryID string) (*Delivery, error) {
	orig, err := m.store.GetDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	ep, err := m.store.GetEndpoint(ctx, orig.EndpointID)
	if err != nil {
		return nil, err
	}
	return m.post(ctx, ep, notification.Channel(orig.Channel), orig.Key, orig.Payload, orig.Attempt+1), nil
}

// Ping sends a test payload to one endpoint regardless of its channels.
func (m *Manager) Ping(ctx context.Context, id string) (*Delivery, error) {
	ep, err := m.store.GetEndpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.post(ctx, ep, "test", "ping", []byte(`{"test":true}`), 1), nil
}

// Publisher adapts the manager to a notification channel.
func (m *Manager) Publisher(ch notification.Channel) notification.Publisher {
	return channelPublisher{m: m, ch: ch}
}

type channelPublisher struct {
	m  *Manager
	ch notification.Channel
}

func (p channelPublisher) Publish(ctx context.Context, key string, payload []byte) error {
	return p.m.Deliver(ctx, p.ch, key, payload)
}
