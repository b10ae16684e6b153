package quota

import (
	"errors"
	"time"
)

// Wire layouts of the persisted daily record.
const (
	DateLayout    = "2006-01-02"
	InstantLayout = "2006-01-02T15:04:05.000Z07:00"
)

// ErrCorruptRecord signals a stored daily record that cannot be decoded.
// Storage answered, so the record can be overwritten.
var ErrCorruptRecord = errors.New("corrupt daily record")

// DailyRecord is the persisted calendar-day request log.
type DailyRecord struct {
	Date     string
	Requests []time.Time
}

// DateOf formats t as a calendar date in loc.
func DateOf(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}
