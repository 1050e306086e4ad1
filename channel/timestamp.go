package channel

import "time"

// Timestamp is milliseconds since the POSIX epoch. Deadlines in the core are
// data compared against caller supplied bounds, never against a clock.
type Timestamp uint64

func TimestampFromTime(t time.Time) Timestamp {
	ms := t.UnixMilli()
	if ms <= 0 {
		return 0
	}
	return Timestamp(ms)
}

func (t Timestamp) Time() time.Time { return time.UnixMilli(int64(t)).UTC() }

// Add saturates at the maximum timestamp.
func (t Timestamp) Add(d Duration) Timestamp {
	s := uint64(t) + uint64(d)
	if s < uint64(t) {
		return Timestamp(^uint64(0))
	}
	return Timestamp(s)
}

// Duration is a span in milliseconds, used for close periods and cheque TTLs.
type Duration uint64

func DurationFromStd(d time.Duration) Duration {
	if d <= 0 {
		return 0
	}
	return Duration(d / time.Millisecond)
}

func (d Duration) Std() time.Duration { return time.Duration(d) * time.Millisecond }
