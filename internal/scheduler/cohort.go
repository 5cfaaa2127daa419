package scheduler

import (
	"context"
	"fmt"
	"time"

	"social_ingest/internal/domain"
)

type Strategy string

const (
	StrategySmart       Strategy = "smart"
	StrategyNewOnly     Strategy = "new-only"
	StrategyFullRefresh Strategy = "full-refresh"
)

// ParseStrategy maps a request flag to a Strategy; empty means smart.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "", StrategySmart:
		return StrategySmart, nil
	case StrategyNewOnly:
		return StrategyNewOnly, nil
	case StrategyFullRefresh:
		return StrategyFullRefresh, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

const (
	CohortInitial     = "initial"
	CohortRefresh     = "refresh"
	CohortCatchup     = "catchup"
	CohortRecent      = "recent"
	CohortFullRefresh = "full-refresh"
	CohortYouTube     = "youtube"
	CohortCustom      = "custom"
)

// Quotas is the per-profile post volume requested for each staleness bracket.
type Quotas struct {
	Initial     int
	Recent      int
	Catchup     int
	Refresh     int
	FullRefresh int
	RecentDays  int
	CatchupDays int
}

func DefaultQuotas() Quotas {
	return Quotas{
		Initial:     100,
		Recent:      7,
		Catchup:     30,
		Refresh:     100,
		FullRefresh: 100,
		RecentDays:  7,
		CatchupDays: 30,
	}
}

// Cohort groups profiles that share a staleness bracket and quota.
type Cohort struct {
	Name     string
	MaxPosts int
	Profiles []domain.Profile
}

// Partition splits profiles into non-empty cohorts for the given strategy.
// Every input profile lands in exactly one cohort, except that new-only
// drops profiles that were scraped before. Cohorts are ordered initial,
// refresh, catchup, recent.
func Partition(profiles []domain.Profile, strategy Strategy, q Quotas, now time.Time) []Cohort {
	if strategy == StrategyFullRefresh {
		if len(profiles) == 0 {
			return nil
		}
		return []Cohort{{Name: CohortFullRefresh, MaxPosts: q.FullRefresh, Profiles: profiles}}
	}

	initial := Cohort{Name: CohortInitial, MaxPosts: q.Initial}
	refresh := Cohort{Name: CohortRefresh, MaxPosts: q.Refresh}
	catchup := Cohort{Name: CohortCatchup, MaxPosts: q.Catchup}
	recent := Cohort{Name: CohortRecent, MaxPosts: q.Recent}

	for _, p := range profiles {
		if p.LastScrapedAt == nil {
			initial.Profiles = append(initial.Profiles, p)
			continue
		}
		if strategy == StrategyNewOnly {
			continue
		}

		switch days := DaysSince(*p.LastScrapedAt, now); {
		case days <= q.RecentDays:
			recent.Profiles = append(recent.Profiles, p)
		case days <= q.CatchupDays:
			catchup.Profiles = append(catchup.Profiles, p)
		default:
			refresh.Profiles = append(refresh.Profiles, p)
		}
	}

	var cohorts []Cohort
	for _, c := range []Cohort{initial, refresh, catchup, recent} {
		if len(c.Profiles) > 0 {
			cohorts = append(cohorts, c)
		}
	}
	return cohorts
}

// DaysSince counts whole elapsed days; a timestamp in the future counts as 0.
func DaysSince(t, now time.Time) int {
	d := now.Sub(t)
	if d < 0 {
		return 0
	}
	return int(d.Hours() / 24)
}

// TotalQuota is the number of posts the cohorts would request in total.
func TotalQuota(cohorts []Cohort) int {
	total := 0
	for _, c := range cohorts {
		total += len(c.Profiles) * c.MaxPosts
	}
	return total
}

func ProfileCount(cohorts []Cohort) int {
	n := 0
	for _, c := range cohorts {
		n += len(c.Profiles)
	}
	return n
}

// Batch is one provider request: a slice of a cohort no larger than the
// provider's target url limit.
type Batch struct {
	Cohort   string
	Label    string
	MaxPosts int
	Profiles []domain.Profile
}

// Chunk splits every cohort into batches of at most size profiles. Labels
// carry a "[i/n]" suffix only when a cohort needs more than one batch.
func Chunk(cohorts []Cohort, size int) []Batch {
	var batches []Batch
	for _, c := range cohorts {
		if size <= 0 || len(c.Profiles) <= size {
			batches = append(batches, Batch{Cohort: c.Name, Label: c.Name, MaxPosts: c.MaxPosts, Profiles: c.Profiles})
			continue
		}

		n := (len(c.Profiles) + size - 1) / size
		for i := 0; i < n; i++ {
			end := min((i+1)*size, len(c.Profiles))
			batches = append(batches, Batch{
				Cohort:   c.Name,
				Label:    fmt.Sprintf("%s [%d/%d]", c.Name, i+1, n),
				MaxPosts: c.MaxPosts,
				Profiles: c.Profiles[i*size : end],
			})
		}
	}
	return batches
}

// TriggerFunc starts the ingestion work for one batch and fills in whatever
// it learned (run id, counts) on the result.
type TriggerFunc func(ctx context.Context, b Batch, res *domain.CohortResult) error

// Dispatch runs trigger for every batch in order. A failing batch records its
// error and does not stop the remaining ones.
func Dispatch(ctx context.Context, batches []Batch, unitCost float64, trigger TriggerFunc) []domain.CohortResult {
	results := make([]domain.CohortResult, 0, len(batches))
	for _, b := range batches {
		res := domain.CohortResult{
			Cohort:        b.Cohort,
			Label:         b.Label,
			ProfileCount:  len(b.Profiles),
			MaxPosts:      b.MaxPosts,
			EstimatedCost: float64(len(b.Profiles)*b.MaxPosts) * unitCost,
		}

		if err := ctx.Err(); err != nil {
			res.Error = err.Error()
		} else if err := trigger(ctx, b, &res); err != nil {
			res.Error = err.Error()
		}

		results = append(results, res)
	}
	return results
}

// Failed counts results that carry an error.
func Failed(results []domain.CohortResult) int {
	n := 0
	for _, r := range results {
		if r.Error != "" {
			n++
		}
	}
	return n
}
