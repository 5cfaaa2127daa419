// Package directory holds the per-run profile lookup used to attribute
// scraped posts to tracked profiles.
package directory

import (
	"strings"

	"social_ingest/internal/domain"
)

// MatchRule names the resolver branch that produced an attribution.
type MatchRule string

const (
	MatchNone          MatchRule = "none"
	MatchHandle        MatchRule = "handle"
	MatchName          MatchRule = "name"
	MatchSingleProfile MatchRule = "single_profile"
)

// Match is the resolver result. ProfileID is nil when Rule is MatchNone.
type Match struct {
	ProfileID *int64
	Rule      MatchRule
}

// Index maps handles (as stored) and lowercased display names to profile ids.
// It is built fresh for every ingestion run and is read-only afterwards.
type Index struct {
	byHandle map[string]int64
	byName   map[string]int64
	only     *int64
	size     int
}

func NewIndex(profiles []domain.Profile) *Index {
	idx := &Index{
		byHandle: make(map[string]int64, len(profiles)),
		byName:   make(map[string]int64, len(profiles)),
		size:     len(profiles),
	}

	for _, p := range profiles {
		if p.Username != "" {
			if _, exists := idx.byHandle[p.Username]; !exists {
				idx.byHandle[p.Username] = p.ID
			}
		}
		if name := normalizeName(p.DisplayName); name != "" {
			if _, exists := idx.byName[name]; !exists {
				idx.byName[name] = p.ID
			}
		}
	}

	if len(profiles) == 1 {
		id := profiles[0].ID
		idx.only = &id
	}

	return idx
}

func (idx *Index) Len() int {
	return idx.size
}

// Resolve attributes an author to a profile: exact handle first, then
// lowercased display name, then (when allowSingle is set) the only profile
// of a single-profile directory.
func (idx *Index) Resolve(handle, name string, allowSingle bool) Match {
	if handle != "" {
		if id, ok := idx.byHandle[handle]; ok {
			return Match{ProfileID: &id, Rule: MatchHandle}
		}
	}

	if n := normalizeName(name); n != "" {
		if id, ok := idx.byName[n]; ok {
			return Match{ProfileID: &id, Rule: MatchName}
		}
	}

	if allowSingle && idx.only != nil {
		id := *idx.only
		return Match{ProfileID: &id, Rule: MatchSingleProfile}
	}

	return Match{Rule: MatchNone}
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
