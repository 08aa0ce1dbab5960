// Package idempotency replays the first successful response of a mutating
// request when a client retries it with the same Idempotency-Key header.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"regexp"
	"strings"
	"time"
)

const (
	// HeaderIdempotencyKey is the request header carrying the client key
	HeaderIdempotencyKey = "Idempotency-Key"

	// HeaderReplayed is set on responses served from a stored record
	HeaderReplayed = "Idempotent-Replayed"

	// MaxKeyLength is the longest key accepted
	MaxKeyLength = 255
)

var (
	// ErrKeyTooLong indicates the key exceeds MaxKeyLength
	ErrKeyTooLong = errors.New("key exceeds 255 characters")

	// ErrKeyInvalid indicates the key has characters outside [A-Za-z0-9_-]
	ErrKeyInvalid = errors.New("key may only contain letters, digits, '-' and '_'")
)

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Record is the stored state of one idempotency key
type Record struct {
	ID          string     `bson:"_id" json:"id"`
	Key         string     `bson:"key" json:"key"`
	UserID      string     `bson:"userId,omitempty" json:"userId,omitempty"`
	Method      string     `bson:"method" json:"method"`
	Path        string     `bson:"path" json:"path"`
	Fingerprint string     `bson:"fingerprint" json:"fingerprint"`
	LockedAt    *time.Time `bson:"lockedAt,omitempty" json:"lockedAt,omitempty"`

	StatusCode  int    `bson:"statusCode,omitempty" json:"statusCode,omitempty"`
	ContentType string `bson:"contentType,omitempty" json:"contentType,omitempty"`
	Body        []byte `bson:"body,omitempty" json:"-"`

	CreatedAt   time.Time  `bson:"createdAt" json:"createdAt"`
	CompletedAt *time.Time `bson:"completedAt,omitempty" json:"completedAt,omitempty"`
	ExpiresAt   time.Time  `bson:"expiresAt" json:"expiresAt"`
}

// IsCompleted reports whether a response has been stored
func (r *Record) IsCompleted() bool {
	return r.CompletedAt != nil
}

// IsLocked reports whether a request holding the key may still be running at now
func (r *Record) IsLocked(now time.Time, lockTimeout time.Duration) bool {
	return !r.IsCompleted() && r.LockedAt != nil && now.Sub(*r.LockedAt) < lockTimeout
}

// ValidateKey checks the length and alphabet of a client key
func ValidateKey(key string) error {
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if !keyPattern.MatchString(key) {
		return ErrKeyInvalid
	}
	return nil
}

// RecordID scopes a client key to the service and the calling user
func RecordID(service, userID, key string) string {
	return digest(service, userID, key)
}

// Fingerprint identifies the request a key was first used for
func Fingerprint(method, path string, body []byte) string {
	return digest(method, path, string(body))
}

func digest(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}
