package ratelimit

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestProperty_WindowLimiterNeverExceedsLimit(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("allowed events never exceed limit within one window", prop.ForAll(
		func(limit int, attempts int) bool {
			clock := newClock()
			l := NewWindowLimiter("p", time.Minute, limit, WithClock(clock.Now))
			allowed := 0
			for i := 0; i < attempts; i++ {
				if l.Allow("k") {
					allowed++
				}
				clock.Advance(time.Millisecond)
			}
			want := attempts
			if want > limit {
				want = limit
			}
			return allowed == want
		},
		gen.IntRange(1, 50),
		gen.IntRange(0, 200),
	))

	properties.Property("keys are independent", prop.ForAll(
		func(limit int) bool {
			l := NewWindowLimiter("p", time.Minute, limit)
			for i := 0; i < limit; i++ {
				l.Allow("a")
			}
			return !l.Allow("a") && l.Allow("b")
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
