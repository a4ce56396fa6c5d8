package clocks

import "time"

type Datetime struct {
	Seconds     uint64
	Nanoseconds uint32
}

// Time converts d back to a time.Time in UTC.
func (d Datetime) Time() time.Time {
	return time.Unix(int64(d.Seconds), int64(d.Nanoseconds)).UTC()
}

type Wall struct{}

func (Wall) Now() Datetime {
	now := time.Now()
	return Datetime{
		Seconds:     uint64(now.Unix()),
		Nanoseconds: uint32(now.Nanosecond()),
	}
}

func (Wall) Resolution() Datetime {
	return Datetime{Nanoseconds: 1}
}
