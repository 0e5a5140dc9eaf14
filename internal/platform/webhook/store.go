// Package webhook delivers notification channel traffic (outbreak alerts,
// report archive events) to subscriber URLs, signed with HMAC-SHA256.
package webhook

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

const (
	StatusActive = "active"
	StatusPaused = "paused"

	DeliverySuccess = "success"
	DeliveryFailed  = "failed"
)

var (
	ErrEndpointNotFound = errors.New("webhook endpoint not found")
	ErrDeliveryNotFound = errors.New("webhook delivery not found")
)

// Endpoint is a subscriber URL. Channels lists notification channels
// ("alert", "archive") or "*" for all.
type Endpoint struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Secret      string    `json:"secret,omitempty"`
	Channels    []string  `json:"channels"`
	Description string    `json:"description,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
}

// redacted hides the secret; it is only returned when the endpoint is
// created.
func (e Endpoint) redacted() Endpoint {
	e.Secret = ""
	return e
}

// Delivery records one POST to an endpoint.
type Delivery struct {
	ID           string        `json:"id"`
	EndpointID   string        `json:"endpoint_id"`
	Channel      string        `json:"channel"`
	Key          string        `json:"key,omitempty"`
	Payload      []byte        `json:"payload"`
	StatusCode   int           `json:"status_code"`
	ResponseBody string        `json:"response_body,omitempty"`
	Duration     time.Duration `json:"duration_ns"`
	Attempt      int           `json:"attempt"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// Store persists endpoints and delivery logs.
type Store interface {
	CreateEndpoint(ctx context.Context, ep *Endpoint) error
	GetEndpoint(ctx context.Context, id string) (*Endpoint, error)
	ListEndpoints(ctx context.Context) ([]*Endpoint, error)
	UpdateEndpoint(ctx context.Context, ep *Endpoint) error
	DeleteEndpoint(ctx context.Context, id string) error
	RecordDelivery(ctx context.Context, d *Delivery) error
	GetDelivery(ctx context.Context, id string) (*Delivery, error)
	ListDeliveries(ctx context.Context, endpointID string) ([]*Delivery, error)
}

// MemoryStore keeps endpoints and the most recent deliveries per endpoint in
// memory.
type MemoryStore struct {
	mu         sync.RWMutex
	endpoints  map[string]*Endpoint
	deliveries map[string]*Delivery
	byEndpoint map[string][]string
	keep       int
}

// NewMemoryStore keeps up to keep deliveries per endpoint (default 100).
func NewMemoryStore(keep int) *MemoryStore {
	if keep <= 0 {
		keep = 100
	}
	return &MemoryStore{
		endpoints:  make(map[string]*Endpoint),
		deliveries: make(map[string]*Delivery),
		byEndpoint: make(map[string][]string),
		keep:       keep,
	}
}

func (s *MemoryStore) CreateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *ep
	s.endpoints[ep.ID] = &cp
	return nil
}

func (s *MemoryStore) GetEndpoint(_ context.Context, id string) (*Endpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[id]
	if !ok {
		return nil, ErrEndpointNotFound
	}
	cp := *ep
	return &cp, nil
}

// ListEndpoints returns endpoints oldest first.
func (s *MemoryStore) ListEndpoints(_ context.Context) ([]*Endpoint, error) {
	s.mu.RLock()
	out := make([]*Endpoint, 0, len(s.endpoints))
	for _, ep := range s.endpoints {
		cp := *ep
		out = append(out, &cp)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MemoryStore) UpdateEndpoint(_ context.Context, ep *Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[ep.ID]; !ok {
		return ErrEndpointNotFound
	}
	cp := *ep
	s.endpoints[ep.ID] = &cp
	return nil
}

func (s *MemoryStore) DeleteEndpoint(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.endpoints[id]; !ok {
		return ErrEndpointNotFound
	}
	delete(s.endpoints, id)
	for _, did := range s.byEndpoint[id] {
		delete(s.deliveries, did)
	}
	delete(s.byEndpoint, id)
	return nil
}

func (s *MemoryStore) RecordDelivery(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *d
	s.deliveries[d.ID] = &cp
	ids := append(s.byEndpoint[d.EndpointID], d.ID)
	if len(ids) > s.keep {
		for _, old := range ids[:len(ids)-s.keep] {
			delete(s.deliveries, old)
		}
		ids = append([]string(nil), ids[len(ids)-s.keep:]...)
	}
	s.byEndpoint[d.EndpointID] = ids
	return nil
}

func (s *MemoryStore) GetDelivery(_ context.Context, id string) (*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, ErrDeliveryNotFound
	}
	cp := *d
	return &cp, nil
}

// ListDeliveries returns an endpoint's deliveries, newest first.
func (s *MemoryStore) ListDeliveries(_ context.Context, endpointID string) ([]*Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byEndpoint[endpointID]
	out := make([]*Delivery, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		cp := *s.deliveries[ids[i]]
		out = append(out, &cp)
	}
	return out, nil
}
