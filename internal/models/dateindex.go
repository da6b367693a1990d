package models

import "time"

// DateIndexEntry is the minimal "what is happening today" projection, one
// per (date, org, hunt). Entries must always correspond to a hunt in the
// owning Organization document; they are append-mostly and never silently
// dropped.
type DateIndexEntry struct {
	Date      string    `json:"date"` // YYYY-MM-DD
	OrgSlug   string    `json:"org_slug"`
	HuntID    string    `json:"hunt_id"`
	HuntName  string    `json:"hunt_name"`
	StopCount int       `json:"stop_count"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EventSummary is what EventRepo.ListForDate hands to callers.
type EventSummary struct {
	Date     string `json:"date"`
	OrgSlug  string `json:"org_slug"`
	HuntID   string `json:"hunt_id"`
	HuntName string `json:"hunt_name"`
}

// Summary converts an index entry to the caller-facing shape.
func (e DateIndexEntry) Summary() EventSummary {
	return EventSummary{Date: e.Date, OrgSlug: e.OrgSlug, HuntID: e.HuntID, HuntName: e.HuntName}
}
