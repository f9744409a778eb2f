package dispatch

// BackoffSeconds maps an attempt count to a retry delay: base seconds doubled
// per prior attempt, capped at max. Attempt 1 yields base.
func BackoffSeconds(attemptCount, baseSeconds, maxSeconds int) int {
	delay := baseSeconds
	for i := 1; i < attemptCount; i++ {
		if delay >= maxSeconds {
			return maxSeconds
		}
		delay *= 2
	}
	if delay > maxSeconds {
		return maxSeconds
	}
	return delay
}
