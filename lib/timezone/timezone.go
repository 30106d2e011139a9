package timezone

import (
	"sync/atomic"
	"time"
)

var location atomic.Pointer[time.Location]

func init() {
	location.Store(time.Local)
}

// Location is the timezone the portal renders its dates in. The portal never
// prints an offset, so every parsed date is interpreted in this location.
func Location() *time.Location {
	return location.Load()
}

func SetLocation(loc *time.Location) {
	if loc == nil {
		loc = time.Local
	}
	location.Store(loc)
}

// Load sets the location from an IANA name like "Asia/Kolkata", an empty
// name keeps the machine's local timezone.
func Load(name string) error {
	if name == "" {
		SetLocation(time.Local)
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return err
	}
	SetLocation(loc)
	return nil
}

func Now() time.Time {
	return time.Now().In(Location())
}
