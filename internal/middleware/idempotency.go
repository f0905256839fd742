package middleware

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/bluele/gcache"
	"github.com/gin-gonic/gin"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
)

// StoredResponse is a response kept for replay under an Idempotency-Key.
type StoredResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// ReplayStore keeps responses for repeated mutating requests.
// Load returns nil, nil when nothing is stored under key.
type ReplayStore interface {
	Load(ctx context.Context, key string) (*StoredResponse, error)
	Save(ctx context.Context, key string, resp *StoredResponse, ttl time.Duration) error
}

type recordingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *recordingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency replays the stored response when a POST, PUT or PATCH repeats
// an Idempotency-Key on the same route. Keys are scoped to the authenticated
// account, so it must run after Auth. A nil store disables it.
func Idempotency(store ReplayStore, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if store == nil || key == "" || !replayable(c.Request.Method) {
			c.Next()
			return
		}
		key = replayKey(c, key)

		ctx := c.Request.Context()
		stored, err := store.Load(ctx, key)
		if err != nil {
			logger.Warn("idempotency store unavailable", "error", err)
			c.Next()
			return
		}
		if stored != nil {
			c.Header("Idempotent-Replayed", "true")
			c.Data(stored.Status, stored.ContentType, stored.Body)
			c.Abort()
			return
		}

		w := &recordingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		// Throttled and failed requests may be retried with the same key.
		status := w.Status()
		if status >= http.StatusInternalServerError || status == http.StatusTooManyRequests {
			return
		}
		resp := &StoredResponse{
			Status:      status,
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.body.Bytes(),
		}
		if err := store.Save(ctx, key, resp, idempotencyTTL); err != nil {
			logger.Warn("idempotency save failed", "error", err)
		}
	}
}

// replayKey is account:METHOD path:key.
func replayKey(c *gin.Context, key string) string {
	scope := c.Request.Method + " " + c.Request.URL.Path
	if account := CurrentAccount(c); account != nil {
		scope = account.ID + ":" + scope
	}
	return scope + ":" + key
}

func replayable(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// LocalReplayStore is a per-process ReplayStore for deployments without Redis.
type LocalReplayStore struct {
	mu        sync.Mutex
	responses gcache.Cache
}

// NewLocalReplayStore creates a LocalReplayStore holding at most size responses.
func NewLocalReplayStore(size int) *LocalReplayStore {
	return &LocalReplayStore{responses: gcache.New(size).LRU().Build()}
}

// Load implements ReplayStore.
func (s *LocalReplayStore) Load(_ context.Context, key string) (*StoredResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := s.responses.Get(key)
	if err == gcache.KeyNotFoundError {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v.(*StoredResponse), nil
}

// Save implements ReplayStore.
func (s *LocalReplayStore) Save(_ context.Context, key string, resp *StoredResponse, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responses.SetWithExpire(key, resp, ttl)
}
