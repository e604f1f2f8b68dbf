package known

import (
	"time"

	"github.com/ktr0731/dynpb/dynamic"
	"github.com/pkg/errors"
)

// NewTimestamp returns a google.protobuf.Timestamp message recording t.
func NewTimestamp(t time.Time) *dynamic.Message {
	m := dynamic.New(TimestampType())
	mustSet(m, 1, t.Unix())
	mustSet(m, 2, int32(t.Nanosecond()))
	return m
}

// AsTime converts a google.protobuf.Timestamp message to a time.Time
// in UTC.
func AsTime(m *dynamic.Message) (time.Time, error) {
	if err := expectType(m, "google.protobuf.Timestamp"); err != nil {
		return time.Time{}, err
	}
	seconds, nanos, err := secondsNanos(m)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(seconds, int64(nanos)).UTC(), nil
}

// NewDuration returns a google.protobuf.Duration message recording d.
func NewDuration(d time.Duration) *dynamic.Message {
	nanos := d.Nanoseconds()
	seconds := nanos / int64(time.Second)
	nanos -= seconds * int64(time.Second)
	m := dynamic.New(DurationType())
	mustSet(m, 1, seconds)
	mustSet(m, 2, int32(nanos))
	return m
}

// AsDuration converts a google.protobuf.Duration message to a
// time.Duration. Durations beyond roughly 290 years overflow
// time.Duration and return an error.
func AsDuration(m *dynamic.Message) (time.Duration, error) {
	if err := expectType(m, "google.protobuf.Duration"); err != nil {
		return 0, err
	}
	seconds, nanos, err := secondsNanos(m)
	if err != nil {
		return 0, err
	}
	if nanos <= -int32(time.Second) || nanos >= int32(time.Second) {
		return 0, errors.Errorf("duration nanos %d out of range", nanos)
	}
	if seconds != 0 && nanos != 0 && (seconds < 0) != (nanos < 0) {
		return 0, errors.Errorf("duration seconds %d and nanos %d have opposing signs", seconds, nanos)
	}
	d := time.Duration(seconds) * time.Second
	if int64(d/time.Second) != seconds {
		return 0, errors.Errorf("duration of %d seconds does not fit in time.Duration", seconds)
	}
	if nanos != 0 {
		sum := d + time.Duration(nanos)
		if (sum > d) != (nanos > 0) {
			return 0, errors.Errorf("duration of %d seconds and %d nanos does not fit in time.Duration", seconds, nanos)
		}
		d = sum
	}
	return d, nil
}

func secondsNanos(m *dynamic.Message) (int64, int32, error) {
	md := m.Descriptor()
	seconds, ok := m.Get(md.Find(1)).(int64)
	if !ok {
		return 0, 0, errors.Errorf("%s holds a malformed seconds field", md.Name())
	}
	nanos, ok := m.Get(md.Find(2)).(int32)
	if !ok {
		return 0, 0, errors.Errorf("%s holds a malformed nanos field", md.Name())
	}
	return seconds, nanos, nil
}
