// Package report aggregates panel snapshots into per-recipient summaries.
package report

import (
	"sort"
	"time"

	"xui_reseller_bot/internal/panel"
)

const (
	// lowTrafficThreshold flags clients with less than 1 GiB of quota left.
	lowTrafficThreshold = int64(1) << 30

	// expiringWindow flags clients expiring within the next 24 hours.
	expiringWindow = int64(86400)
)

// Report is the aggregate over the selected inbounds' clients. It is derived
// per request and discarded after delivery.
type Report struct {
	UserCount       int
	OnlineCount     int
	ExpiringCount   int
	ExpiredCount    int
	LowTrafficCount int
	TotalUp         int64
	TotalDown       int64

	// Sorted client labels backing the status list commands and
	// change-detection notices.
	Online   []string
	Expiring []string
	Expired  []string
}

// Build aggregates the snapshot over the inbounds whose id is in the filter.
// Ids in the filter with no matching inbound are silently ignored. Build is
// a pure function of its inputs.
func Build(snap panel.Snapshot, filter map[int64]struct{}, now time.Time) Report {
	var r Report
	nowSec := now.Unix()

	for _, ib := range snap.Inbounds {
		if _, ok := filter[ib.ID]; !ok {
			continue
		}

		for _, client := range ib.ClientList() {
			r.UserCount++
			r.TotalUp += client.Up
			r.TotalDown += client.Down

			if client.Email != "" && snap.IsOnline(client.Email) {
				r.OnlineCount++
				r.Online = append(r.Online, client.Email)
			}

			quota := client.Quota()
			if quota > 0 && quota-(client.Up+client.Down) < lowTrafficThreshold {
				r.LowTrafficCount++
			}

			// expiry 0 means no expiry at all.
			if expiry := client.Expiry(); expiry > 0 {
				remaining := expiry/1000 - nowSec
				switch {
				case remaining <= 0:
					r.ExpiredCount++
					if client.Email != "" {
						r.Expired = append(r.Expired, client.Email)
					}
				case remaining <= expiringWindow:
					r.ExpiringCount++
					if client.Email != "" {
						r.Expiring = append(r.Expiring, client.Email)
					}
				}
			}
		}
	}

	sort.Strings(r.Online)
	sort.Strings(r.Expiring)
	sort.Strings(r.Expired)

	return r
}

// Filter builds an id set from a slice of inbound ids.
func Filter(ids []int64) map[int64]struct{} {
	filter := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		filter[id] = struct{}{}
	}
	return filter
}
