package worker

import (
	"math/rand/v2"
	"time"

	"github.com/notifyhub/notification-relay/internal/domain"
)

// Decider picks the outcome for one message. It is called exactly once per
// delivered message.
type Decider func() domain.Status

// RandomDecider draws a uniform integer in [1,10]; values up to threshold
// fail and the rest succeed. threshold 2 yields a 20% failure rate.
func RandomDecider(threshold int) Decider {
	return func() domain.Status {
		if Roll() <= threshold {
			return domain.StatusFailure
		}
		return domain.StatusSuccess
	}
}

// Roll returns a uniform integer in [1,10].
func Roll() int {
	return rand.IntN(10) + 1
}

// RandomDelay returns a uniformly random duration in [lo, hi].
func RandomDelay(lo, hi time.Duration) func() time.Duration {
	return func() time.Duration {
		if hi <= lo {
			return lo
		}
		return lo + rand.N(hi-lo+1)
	}
}
