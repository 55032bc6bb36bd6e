package enclave

import "github.com/ruteri/tee-enclave-node/interfaces"

// ConvertTime maps the host's raw tick arguments to typed values. now is a
// count of native clock ticks (nanoseconds) since the Unix epoch and elapsed
// a count of milliseconds since the previous tick. Both are reinterpreted
// exactly, for every int64 value.
func ConvertTime(now, elapsed int64) (interfaces.TimePoint, interfaces.Millis) {
	return interfaces.TimePoint(now), interfaces.Millis(elapsed)
}
