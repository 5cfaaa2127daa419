package domain

import "time"

// IngestStats aggregates the outcome of one batch of raw items.
type IngestStats struct {
	Platform          Platform      `json:"platform"`
	Fetched           int           `json:"itemsFetched"`
	New               int           `json:"newPosts"`
	Updated           int           `json:"updatedPosts"`
	Skipped           int           `json:"skipped"`
	Errors            int           `json:"errors"`
	Published         int           `json:"published"`
	MatchedProfileIDs []int64       `json:"matchedProfileIds"`
	Duration          time.Duration `json:"-"`
}

// Record folds a single upsert outcome into the stats, keeping the touched
// profile set free of duplicates.
func (s *IngestStats) Record(o UpsertOutcome) {
	switch o.Action {
	case ActionInserted:
		s.New++
	case ActionUpdated:
		s.Updated++
	}
	if o.ProfileID == nil {
		return
	}
	for _, id := range s.MatchedProfileIDs {
		if id == *o.ProfileID {
			return
		}
	}
	s.MatchedProfileIDs = append(s.MatchedProfileIDs, *o.ProfileID)
}
