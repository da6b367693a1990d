package models

import (
	"fmt"
	"time"
)

// Organization is the per-tenant document: profile plus all of its hunts.
// The slug is the storage key and is stable once created. Archival is a
// payload field; records are never hard-deleted.
type Organization struct {
	Slug      string    `json:"slug"`
	Name      string    `json:"name"`
	Contact   string    `json:"contact,omitempty"`
	Hunts     []Hunt    `json:"hunts"`
	Archived  bool      `json:"archived"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Hunt is one scavenger-hunt event owned by an organization.
type Hunt struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Date        string     `json:"date"` // YYYY-MM-DD, local to the event
	Rules       string     `json:"rules,omitempty"`
	MaxTeamSize int        `json:"max_team_size,omitempty"`
	Stops       []Stop     `json:"stops,omitempty"`
	Teams       []Team     `json:"teams,omitempty"`
	Scoring     Scoring    `json:"scoring"`
	Moderation  Moderation `json:"moderation"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Stop is one location/clue a team must solve during a hunt.
type Stop struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Clue      string `json:"clue,omitempty"`
	Answer    string `json:"answer,omitempty"`
	Points    int    `json:"points"`
	OrderHint int    `json:"order_hint,omitempty"`
}

// Team is a registered team within a hunt.
type Team struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members,omitempty"`
	Score   int      `json:"score"`
}

// Scoring configures how stop completions translate into points.
type Scoring struct {
	BonusFirstFinish int  `json:"bonus_first_finish,omitempty"`
	PenaltyPerHint   int  `json:"penalty_per_hint,omitempty"`
	TieBreakByTime   bool `json:"tie_break_by_time,omitempty"`
}

// Moderation holds the moderation and audit settings for a hunt.
type Moderation struct {
	RequirePhotoReview bool     `json:"require_photo_review,omitempty"`
	Moderators         []string `json:"moderators,omitempty"`
	AuditLog           []string `json:"audit_log,omitempty"`
}

const dateLayout = "2006-01-02"

// Validate checks the document shape the migration engine relies on:
// non-empty slug, hunts unique by id, parseable hunt dates.
func (o *Organization) Validate() error {
	if o.Slug == "" {
		return fmt.Errorf("organization has empty slug")
	}
	seen := make(map[string]bool, len(o.Hunts))
	for i := range o.Hunts {
		h := &o.Hunts[i]
		if h.ID == "" {
			return fmt.Errorf("org %s: hunt %d has empty id", o.Slug, i)
		}
		if seen[h.ID] {
			return fmt.Errorf("org %s: duplicate hunt id %s", o.Slug, h.ID)
		}
		seen[h.ID] = true
		if h.Date != "" {
			if _, err := time.Parse(dateLayout, h.Date); err != nil {
				return fmt.Errorf("org %s: hunt %s has bad date %q: %w", o.Slug, h.ID, h.Date, err)
			}
		}
	}
	return nil
}

// HuntByID returns the hunt with the given id, or nil.
func (o *Organization) HuntByID(id string) *Hunt {
	for i := range o.Hunts {
		if o.Hunts[i].ID == id {
			return &o.Hunts[i]
		}
	}
	return nil
}
