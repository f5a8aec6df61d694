package vidstab

import "time"

// TimeProvider is an interface for getting the current time.
// This allows injecting a mock time provider for deterministic stage timings.
type TimeProvider interface {
	// Now returns the current time.
	Now() time.Time
	// Since returns the time elapsed since t.
	Since(t time.Time) time.Duration
}

// RealTimeProvider implements TimeProvider using the actual system time.
type RealTimeProvider struct{}

// Now returns the current system time.
func (RealTimeProvider) Now() time.Time {
	return time.Now()
}

// Since returns the time elapsed since t.
func (RealTimeProvider) Since(t time.Time) time.Duration {
	return time.Since(t)
}

// getTimeProvider returns tp if non-nil, otherwise the system clock.
func getTimeProvider(tp TimeProvider) TimeProvider {
	if tp != nil {
		return tp
	}
	return RealTimeProvider{}
}
