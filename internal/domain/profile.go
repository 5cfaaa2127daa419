package domain

import (
	"strings"
	"time"
)

type Platform string

const (
	PlatformLinkedIn Platform = "linkedin"
	PlatformYouTube  Platform = "youtube"
)

type ProfileType string

const (
	ProfileTypeOwn         ProfileType = "own"
	ProfileTypeCompetitor  ProfileType = "competitor"
	ProfileTypeTeam        ProfileType = "team"
	ProfileTypeInspiration ProfileType = "inspiration"
	ProfileTypePartner     ProfileType = "partner"
	ProfileTypeOther       ProfileType = "other"
)

// Profile is a tracked LinkedIn or YouTube account.
type Profile struct {
	ID            int64       `db:"id" json:"id"`
	Username      string      `db:"username" json:"username"`
	DisplayName   string      `db:"display_name" json:"displayName"`
	ProfileURL    string      `db:"profile_url" json:"profileUrl"`
	ProfileType   ProfileType `db:"profile_type" json:"profileType"`
	CompanyID     *int64      `db:"company_id" json:"companyId,omitempty"`
	LastScrapedAt *time.Time  `db:"last_scraped_at" json:"lastScrapedAt,omitempty"`
}

// Platform reports where the profile lives. YouTube channels are stored
// with their @handle as username.
func (p Profile) Platform() Platform {
	if strings.HasPrefix(p.Username, "@") {
		return PlatformYouTube
	}
	return PlatformLinkedIn
}

func ProfileIDs(profiles []Profile) []int64 {
	ids := make([]int64, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}
	return ids
}

func ProfileURLs(profiles []Profile) []string {
	urls := make([]string, len(profiles))
	for i, p := range profiles {
		urls[i] = p.ProfileURL
	}
	return urls
}
