package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dubox-platform/production-service/pkg/errors"
	"github.com/dubox-platform/production-service/pkg/logging"
	"github.com/dubox-platform/production-service/pkg/middleware"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	router *gin.Engine
	repo   *MemoryRepository
	clock  *testClock
	calls  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		repo:  NewMemoryRepository(),
		clock: &testClock{now: time.Date(2024, 11, 4, 8, 0, 0, 0, time.UTC)},
	}
	logger := logging.NewNop()

	cfg := DefaultConfig("production-service", h.repo, logger, nil)
	cfg.Clock = h.clock.Now

	h.router = gin.New()
	h.router.Use(middleware.UserIdentity(), middleware.ErrorHandler(logger))
	h.router.Use(Middleware(cfg))
	h.router.POST("/boxes", func(c *gin.Context) {
		h.calls++
		var body map[string]any
		_ = c.ShouldBindJSON(&body)
		if body["fail"] == true {
			_ = c.Error(errors.ErrValidation("rejected"))
			return
		}
		c.JSON(http.StatusCreated, gin.H{"call": h.calls, "tag": body["tag"]})
	})
	h.router.GET("/boxes", func(c *gin.Context) {
		h.calls++
		c.JSON(http.StatusOK, gin.H{"call": h.calls})
	})
	return h
}

func (h *harness) do(method, key, user, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, "/boxes", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(HeaderIdempotencyKey, key)
	}
	if user != "" {
		req.Header.Set(middleware.HeaderUserID, user)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp middleware.APIErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

type brokenBody struct{}

func (brokenBody) Read([]byte) (int, error) { return 0, stderrors.New("connection reset") }

func TestMiddleware_UnreadableBodyIsRejected(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/boxes", brokenBody{})
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderIdempotencyKey, "reg-1")
	req.Header.Set(middleware.HeaderUserID, "pm-1")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeValidationError, errorCode(t, w))
	assert.Equal(t, 0, h.calls)

	retry := h.do(http.MethodPost, "reg-1", "pm-1", `{"tag":"B-1"}`)
	assert.Equal(t, http.StatusCreated, retry.Code, "the key was never taken")
	assert.Equal(t, 1, h.calls)
}

func TestMiddleware_WithoutKeyPassesThrough(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodPost, "", "pm-1", `{"tag":"B-1"}`)
	w := h.do(http.MethodPost, "", "pm-1", `{"tag":"B-1"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, 2, h.calls)
	assert.Empty(t, w.Header().Get(HeaderReplayed))
}

func TestMiddleware_ReplaysFirstResponse(t *testing.T) {
	h := newHarness(t)

	first := h.do(http.MethodPost, "reg-1", "pm-1", `{"tag":"B-1"}`)
	require.Equal(t, http.StatusCreated, first.Code)

	second := h.do(http.MethodPost, "reg-1", "pm-1", `{"tag":"B-1"}`)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, "true", second.Header().Get(HeaderReplayed))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, 1, h.calls)
}

func TestMiddleware_KeysAreScopedPerUser(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodPost, "reg-1", "pm-1", `{"tag":"B-1"}`)
	w := h.do(http.MethodPost, "reg-1", "pm-2", `{"tag":"B-1"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get(HeaderReplayed))
	assert.Equal(t, 2, h.calls)
}

func TestMiddleware_RejectsKeyReuseWithDifferentBody(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodPost, "reg-1", "pm-1", `{"tag":"B-1"}`)
	w := h.do(http.MethodPost, "reg-1", "pm-1", `{"tag":"B-2"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, errors.CodeIdempotencyKeyReused, errorCode(t, w))
	assert.Equal(t, 1, h.calls)
}

func TestMiddleware_FailedRequestReleasesKey(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "reg-1", "pm-1", `{"fail":true}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "reg-1", "pm-1", `{"tag":"B-1"}`)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Empty(t, w.Header().Get(HeaderReplayed))
	assert.Equal(t, 2, h.calls)
}

func TestMiddleware_InFlightKey(t *testing.T) {
	h := newHarness(t)
	body := `{"tag":"B-1"}`

	_, acquired, err := h.repo.Acquire(context.Background(), &Record{
		ID:          RecordID("production-service", "pm-1", "reg-1"),
		Fingerprint: Fingerprint(http.MethodPost, "/boxes", []byte(body)),
		CreatedAt:   h.clock.Now(),
		ExpiresAt:   h.clock.Now().Add(time.Hour),
	}, DefaultLockTimeout)
	require.NoError(t, err)
	require.True(t, acquired)

	w := h.do(http.MethodPost, "reg-1", "pm-1", body)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, errors.CodeRequestInProgress, errorCode(t, w))
	assert.Equal(t, 0, h.calls)

	h.clock.Advance(DefaultLockTimeout + time.Second)
	w = h.do(http.MethodPost, "reg-1", "pm-1", body)
	assert.Equal(t, http.StatusCreated, w.Code, "stale lock is taken over")
	assert.Equal(t, 1, h.calls)
}

func TestMiddleware_ExpiredRecordRunsAgain(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodPost, "reg-1", "pm-1", `{"tag":"B-1"}`)
	h.clock.Advance(DefaultRetentionPeriod + time.Minute)
	w := h.do(http.MethodPost, "reg-1", "pm-1", `{"tag":"B-1"}`)

	assert.Empty(t, w.Header().Get(HeaderReplayed))
	assert.Equal(t, 2, h.calls)
}

func TestMiddleware_InvalidKey(t *testing.T) {
	h := newHarness(t)

	w := h.do(http.MethodPost, "not a key!", "pm-1", `{"tag":"B-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, errors.CodeIdempotencyKeyInvalid, errorCode(t, w))

	long := string(bytes.Repeat([]byte("k"), MaxKeyLength+1))
	w = h.do(http.MethodPost, long, "pm-1", `{"tag":"B-1"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, h.calls)
}

func TestMiddleware_IgnoresSafeMethods(t *testing.T) {
	h := newHarness(t)

	h.do(http.MethodGet, "read-1", "pm-1", "")
	w := h.do(http.MethodGet, "read-1", "pm-1", "")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, h.calls)
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key  string
		want error
	}{
		{"reg-1", nil},
		{"A_b-9", nil},
		{"has space", ErrKeyInvalid},
		{"semi;colon", ErrKeyInvalid},
		{string(bytes.Repeat([]byte("a"), MaxKeyLength)), nil},
		{string(bytes.Repeat([]byte("a"), MaxKeyLength+1)), ErrKeyTooLong},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateKey(tt.key), tt.key)
	}
}
