package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// New returns a time-sortable ULID string. IDs from one process are strictly
// increasing.
func New() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// SessionID returns an identifier for a live session, used in log fields,
// metric labels and control requests.
func SessionID() string {
	return "ses_" + New()
}

// Time extracts the creation time from an id produced by New or SessionID.
func Time(id string) (time.Time, bool) {
	if len(id) > ulid.EncodedSize {
		id = id[len(id)-ulid.EncodedSize:]
	}
	parsed, err := ulid.Parse(id)
	if err != nil {
		return time.Time{}, false
	}
	return ulid.Time(parsed.Time()), true
}
