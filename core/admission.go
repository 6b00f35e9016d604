package core

import (
	"errors"
	"fmt"
	"time"
)

const (
	maxCallAge    = time.Hour       // reject calls signed more than 1 hour ago
	maxCallFuture = 5 * time.Minute // reject calls more than 5 min in the future
)

// ErrCallExpired is returned for a call whose timestamp is outside the
// admission window.
var ErrCallExpired = errors.New("call timestamp outside admission window")

// CheckAdmission rejects a call whose signed timestamp is older than one hour
// or more than five minutes ahead of now. Ledger execution itself never
// looks at the clock; this check runs before a call is executed.
func CheckAdmission(tx *Transaction, now time.Time) error {
	ts := time.Unix(0, tx.Timestamp)
	if now.Sub(ts) > maxCallAge {
		return fmt.Errorf("%w: signed %s ago", ErrCallExpired, now.Sub(ts).Round(time.Second))
	}
	if ts.Sub(now) > maxCallFuture {
		return fmt.Errorf("%w: %s in the future", ErrCallExpired, ts.Sub(now).Round(time.Second))
	}
	return nil
}
