package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// CacheStatusHeader reports HIT or MISS for cacheable requests.
const CacheStatusHeader = "X-Cache"

// CachedResponse is a stored GET response.
type CachedResponse struct {
	ContentType string `json:"content_type"`
	ETag        string `json:"etag"`
	Body        []byte `json:"body"`
}

// CacheStore is a response cache backend. Implementations must be safe for
// concurrent use. Backend failures degrade to misses.
type CacheStore interface {
	Get(ctx context.Context, key string) (*CachedResponse, bool)
	Set(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration)
	Clear(ctx context.Context)
}

// ---------------------------------------------------------------------------
// InMemoryCacheStore
// ---------------------------------------------------------------------------

type cacheEntry struct {
	resp      *CachedResponse
	expiresAt time.Time
}

// InMemoryCacheStore is a process-local CacheStore with lazy expiration.
type InMemoryCacheStore struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewInMemoryCacheStore() *InMemoryCacheStore {
	return &InMemoryCacheStore{entries: make(map[string]cacheEntry), now: time.Now}
}

func (s *InMemoryCacheStore) Get(_ context.Context, key string) (*CachedResponse, bool) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false
	}
	return e.resp, true
}

func (s *InMemoryCacheStore) Set(_ context.Context, key string, resp *CachedResponse, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = cacheEntry{resp: resp, expiresAt: s.now().Add(ttl)}
}

func (s *InMemoryCacheStore) Clear(context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]cacheEntry)
}

// Len is the number of stored entries, expired or not.
func (s *InMemoryCacheStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// StartCleanup drops expired entries every interval until ctx is done.
func (s *InMemoryCacheStore) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				now := s.now()
				for k, e := range s.entries {
					if now.After(e.expiresAt) {
						delete(s.entries, k)
					}
				}
				s.mu.Unlock()
			}
		}
	}()
}

// ---------------------------------------------------------------------------
// Buffered response writer
// ---------------------------------------------------------------------------

// bufferedResponseWriter holds the handler's output so it can be hashed and
// stored before reaching the client.
type bufferedResponseWriter struct {
	writer     http.ResponseWriter
	buf        bytes.Buffer
	statusCode int
}

func newBufferedResponseWriter(w http.ResponseWriter) *bufferedResponseWriter {
	return &bufferedResponseWriter{writer: w, statusCode: http.StatusOK}
}

func (w *bufferedResponseWriter) Header() http.Header         { return w.writer.Header() }
func (w *bufferedResponseWriter) Write(b []byte) (int, error) { return w.buf.Write(b) }
func (w *bufferedResponseWriter) WriteHeader(code int)        { w.statusCode = code }
func (w *bufferedResponseWriter) Flush()                      {}

// ---------------------------------------------------------------------------
// ResponseCache
// ---------------------------------------------------------------------------

// ResponseCache caches successful GET responses by path and query for ttl
// and answers If-None-Match with 304. Every response it handles carries a
// weak ETag and a private Cache-Control max-age. A zero ttl disables storage
// but keeps the ETag handling.
func ResponseCache(store CacheStore, ttl time.Duration) echo.MiddlewareFunc {
	cacheControl := fmt.Sprintf("private, max-age=%d", int(ttl.Seconds()))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Method != http.MethodGet {
				return next(c)
			}
			ctx := req.Context()
			key := cacheKey(req)

			if store != nil && ttl > 0 {
				if hit, ok := store.Get(ctx, key); ok {
					c.Response().Header().Set(CacheStatusHeader, "HIT")
					return writeCached(c, hit, cacheControl)
				}
			}

			res := c.Response()
			orig := res.Writer
			buf := newBufferedResponseWriter(orig)
			res.Writer = buf
			err := next(c)
			res.Writer = orig
			if err != nil {
				return err
			}

			if buf.statusCode != http.StatusOK {
				orig.WriteHeader(buf.statusCode)
				_, werr := orig.Write(buf.buf.Bytes())
				return werr
			}

			// The handler only committed to the buffer.
			res.Committed = false
			res.Size = 0

			resp := &CachedResponse{
				ContentType: res.Header().Get(echo.HeaderContentType),
				ETag:        computeETag(buf.buf.Bytes()),
				Body:        bytes.Clone(buf.buf.Bytes()),
			}
			if store != nil && ttl > 0 {
				store.Set(ctx, key, resp, ttl)
			}
			res.Header().Set(CacheStatusHeader, "MISS")
			return writeCached(c, resp, cacheControl)
		}
	}
}

// writeCached writes resp, or 304 when the client already holds it.
func writeCached(c echo.Context, resp *CachedResponse, cacheControl string) error {
	h := c.Response().Header()
	h.Set("Cache-Control", cacheControl)
	h.Set("ETag", resp.ETag)
	if inm := c.Request().Header.Get("If-None-Match"); inm != "" && etagMatch(inm, resp.ETag) {
		return c.NoContent(http.StatusNotModified)
	}
	return c.Blob(http.StatusOK, resp.ContentType, resp.Body)
}

// cacheKey is the path plus the sorted query string.
func cacheKey(req *http.Request) string {
	q := req.URL.Query().Encode()
	if q == "" {
		return req.URL.Path
	}
	return req.URL.Path + "?" + q
}

func computeETag(body []byte) string {
	sum := sha256.Sum256(body)
	return `W/"` + hex.EncodeToString(sum[:16]) + `"`
}

// etagMatch compares an If-None-Match value against etag using weak
// comparison. Lists and "*" are accepted.
func etagMatch(header, etag string) bool {
	header = strings.TrimSpace(header)
	if header == "*" {
		return true
	}
	for _, candidate := range strings.Split(header, ",") {
		if strings.TrimPrefix(strings.TrimSpace(candidate), "W/") == strings.TrimPrefix(etag, "W/") {
			return true
		}
	}
	return false
}
