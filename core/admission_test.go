package core_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tolelom/tolask/core"
)

func TestCheckAdmission(t *testing.T) {
	now := time.Now()
	for _, tc := range []struct {
		name   string
		offset time.Duration
		ok     bool
	}{
		{"now", 0, true},
		{"recent", -30 * time.Minute, true},
		{"slightly ahead", time.Minute, true},
		{"expired", -61 * time.Minute, false},
		{"far future", 10 * time.Minute, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tx := &core.Transaction{Timestamp: now.Add(tc.offset).UnixNano()}
			err := core.CheckAdmission(tx, now)
			if tc.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, core.ErrCallExpired)
			}
		})
	}
}
