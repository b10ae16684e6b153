package quota

import (
	"context"

	domquota "github.com/kailas-cloud/replyguard/internal/domain/quota"
)

// DailyStore is the persistence port for the calendar-day request log.
type DailyStore interface {
	// Load returns the stored record; ok is false when nothing is stored.
	Load(ctx context.Context) (rec domquota.DailyRecord, ok bool, err error)
	Save(ctx context.Context, rec domquota.DailyRecord) error
}

// UsageReader provides read-only usage snapshots.
type UsageReader interface {
	UsageStats() domquota.Snapshot
}

// StoragePolicy decides what an unreadable daily record means for admission.
type StoragePolicy string

const (
	// FailOpen treats an unreadable record as an empty day.
	FailOpen StoragePolicy = "open"
	// FailClosed rejects requests until the record can be read again.
	FailClosed StoragePolicy = "closed"
)
