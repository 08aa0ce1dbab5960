package idempotency

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dubox-platform/production-service/pkg/errors"
	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/metrics"
	"github.com/dubox-platform/production-service/pkg/middleware"
)

const (
	// DefaultLockTimeout is how long a running request holds its key
	DefaultLockTimeout = time.Minute

	// DefaultRetentionPeriod is how long completed responses are replayed
	DefaultRetentionPeriod = 24 * time.Hour

	// DefaultMaxResponseSize is the largest response body that is stored
	DefaultMaxResponseSize = 1 << 20
)

// Outcomes recorded in metrics
const (
	OutcomeMiss     = "miss"
	OutcomeReplay   = "replay"
	OutcomeInFlight = "in_flight"
	OutcomeMismatch = "mismatch"
	OutcomeError    = "error"
)

// Config holds the middleware configuration
type Config struct {
	ServiceName     string
	Repository      Repository
	Logger          *logging.Logger
	Metrics         *metrics.Metrics
	UserIDExtractor func(*gin.Context) string
	LockTimeout     time.Duration
	RetentionPeriod time.Duration
	MaxResponseSize int
	Clock           func() time.Time
}

// DefaultConfig returns a configuration scoping keys per calling user
func DefaultConfig(serviceName string, repo Repository, logger *logging.Logger, m *metrics.Metrics) *Config {
	return &Config{
		ServiceName:     serviceName,
		Repository:      repo,
		Logger:          logger,
		Metrics:         m,
		UserIDExtractor: middleware.GetUserID,
		LockTimeout:     DefaultLockTimeout,
		RetentionPeriod: DefaultRetentionPeriod,
		MaxResponseSize: DefaultMaxResponseSize,
		Clock:           func() time.Time { return time.Now().UTC() },
	}
}

type captureWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *captureWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *captureWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Middleware replays stored responses for mutating requests that carry an
// Idempotency-Key header. Requests without the header pass through. Only
// 2xx responses are stored; any other outcome releases the key so the
// client can retry.
func Middleware(config *Config) gin.HandlerFunc {
	logger := config.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.WithComponent("idempotency")
	clock := config.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		if key == "" || !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		if err := ValidateKey(key); err != nil {
			middleware.AbortWithAppError(c, errors.ErrIdempotencyKeyInvalid(err.Error()))
			return
		}

		var body []byte
		if c.Request.Body != nil {
			var err error
			body, err = io.ReadAll(c.Request.Body)
			if err != nil {
				logger.WithError(err).Warn("Failed to read request body", "path", c.Request.URL.Path)
				middleware.AbortWithAppError(c, errors.ErrValidation("failed to read request body"))
				return
			}
			c.Request.Body = io.NopCloser(bytes.NewReader(body))
		}

		var userID string
		if config.UserIDExtractor != nil {
			userID = config.UserIDExtractor(c)
		}

		ctx := c.Request.Context()
		method := c.Request.Method
		now := clock()
		rec := &Record{
			ID:          RecordID(config.ServiceName, userID, key),
			Key:         key,
			UserID:      userID,
			Method:      method,
			Path:        c.Request.URL.Path,
			Fingerprint: Fingerprint(method, c.Request.URL.Path, body),
			CreatedAt:   now,
			ExpiresAt:   now.Add(config.RetentionPeriod),
		}

		stored, acquired, err := config.Repository.Acquire(ctx, rec, config.LockTimeout)
		if err != nil {
			logger.WithError(err).Error("Failed to acquire idempotency key", "path", rec.Path)
			config.Metrics.RecordIdempotentRequest(method, OutcomeError)
			middleware.AbortWithAppError(c, errors.ErrServiceUnavailable("idempotency store").Wrap(err))
			return
		}

		if !acquired {
			switch {
			case stored.Fingerprint != rec.Fingerprint:
				config.Metrics.RecordIdempotentRequest(method, OutcomeMismatch)
				logger.Warn("Idempotency key reused for a different request", "path", rec.Path, "originalPath", stored.Path)
				middleware.AbortWithAppError(c, errors.ErrIdempotencyKeyReused())
			case stored.IsCompleted():
				config.Metrics.RecordIdempotentRequest(method, OutcomeReplay)
				logger.Debug("Replaying stored response", "path", rec.Path, "status", stored.StatusCode)
				c.Header(HeaderReplayed, "true")
				c.Data(stored.StatusCode, stored.ContentType, stored.Body)
				c.Abort()
			default:
				config.Metrics.RecordIdempotentRequest(method, OutcomeInFlight)
				middleware.AbortWithAppError(c, errors.ErrRequestInProgress())
			}
			return
		}

		config.Metrics.RecordIdempotentRequest(method, OutcomeMiss)
		writer := &captureWriter{ResponseWriter: c.Writer, body: &bytes.Buffer{}}
		c.Writer = writer

		c.Next()

		status := writer.Status()
		if status < 200 || status >= 300 || len(c.Errors) > 0 || writer.body.Len() > config.MaxResponseSize {
			if err := config.Repository.Release(ctx, rec.ID); err != nil {
				logger.WithError(err).Warn("Failed to release idempotency key", "path", rec.Path)
			}
			return
		}

		contentType := writer.Header().Get("Content-Type")
		if err := config.Repository.Complete(ctx, rec.ID, status, contentType, writer.body.Bytes(), clock()); err != nil {
			logger.WithError(err).Warn("Failed to store idempotent response", "path", rec.Path)
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}
