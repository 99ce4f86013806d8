package id

import (
	"crypto/rand"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// New generates a ULID string. IDs minted by one process are strictly
// increasing, even within the same millisecond.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// WithPrefix returns a ULID prefixed with p, e.g. "SM01J..." for message SIDs.
func WithPrefix(p string) string {
	return p + New()
}
