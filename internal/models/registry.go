package models

import "time"

// Registry is the singleton document holding global platform state: feature
// flags, the organization directory, and a coarse date index projection.
// Exactly one live version exists at a time; it goes through the same
// version-token write protocol as every other document.
type Registry struct {
	FeatureFlags  map[string]bool     `json:"feature_flags,omitempty"`
	Organizations []OrgDirectoryEntry `json:"organizations"`
	UpdatedAt     time.Time           `json:"updated_at"`
}

// OrgDirectoryEntry is the registry's projection of one organization.
type OrgDirectoryEntry struct {
	Slug      string `json:"slug"`
	Name      string `json:"name"`
	HuntCount int    `json:"hunt_count"`
	Archived  bool   `json:"archived,omitempty"`
}

// DirectoryEntry returns the directory entry for a slug, or nil.
func (r *Registry) DirectoryEntry(slug string) *OrgDirectoryEntry {
	for i := range r.Organizations {
		if r.Organizations[i].Slug == slug {
			return &r.Organizations[i]
		}
	}
	return nil
}

// UpsertDirectoryEntry replaces or appends the entry for entry.Slug.
func (r *Registry) UpsertDirectoryEntry(entry OrgDirectoryEntry) {
	for i := range r.Organizations {
		if r.Organizations[i].Slug == entry.Slug {
			r.Organizations[i] = entry
			return
		}
	}
	r.Organizations = append(r.Organizations, entry)
}
