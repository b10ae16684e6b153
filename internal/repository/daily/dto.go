package daily

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/replyguard/internal/domain/quota"
)

// recordDTO is the stored JSON shape:
// {"date": "2026-10-15", "requests": ["2026-10-15T09:30:00.000Z", ...]}.
type recordDTO struct {
	Date     string   `json:"date"`
	Requests []string `json:"requests"`
}

func toDTO(r quota.DailyRecord) recordDTO {
	reqs := make([]string, len(r.Requests))
	for i, t := range r.Requests {
		reqs[i] = t.UTC().Format(quota.InstantLayout)
	}
	return recordDTO{Date: r.Date, Requests: reqs}
}

func fromDTO(d recordDTO) (quota.DailyRecord, error) {
	if d.Date == "" {
		return quota.DailyRecord{}, fmt.Errorf("%w: missing date", ErrCorruptRecord)
	}
	reqs := make([]time.Time, 0, len(d.Requests))
	for _, s := range d.Requests {
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return quota.DailyRecord{}, fmt.Errorf("%w: bad instant %q", ErrCorruptRecord, s)
		}
		reqs = append(reqs, t)
	}
	return quota.DailyRecord{Date: d.Date, Requests: reqs}, nil
}
