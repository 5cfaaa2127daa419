package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"social_ingest/internal/domain"
)

const profileColumns = `id, username, display_name, profile_url, profile_type, company_id, last_scraped_at`

type ProfileStore struct {
	db *sqlx.DB
}

func NewProfileStore(db *sqlx.DB) *ProfileStore {
	return &ProfileStore{db: db}
}

func (s *ProfileStore) List(ctx context.Context) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := s.db.SelectContext(ctx, &profiles,
		`SELECT `+profileColumns+` FROM profiles ORDER BY display_name ASC, id ASC`)
	return profiles, err
}

func (s *ProfileStore) ListByIDs(ctx context.Context, ids []int64) ([]domain.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var profiles []domain.Profile
	err := s.db.SelectContext(ctx, &profiles,
		`SELECT `+profileColumns+` FROM profiles WHERE id = ANY($1) ORDER BY display_name ASC, id ASC`,
		pq.Array(ids))
	return profiles, err
}

func (s *ProfileStore) ListByType(ctx context.Context, profileType domain.ProfileType) ([]domain.Profile, error) {
	var profiles []domain.Profile
	err := s.db.SelectContext(ctx, &profiles,
		`SELECT `+profileColumns+` FROM profiles WHERE profile_type = $1 ORDER BY display_name ASC, id ASC`,
		profileType)
	return profiles, err
}

// UpdateLastScraped stamps every listed profile in one statement and returns
// the number of rows touched.
func (s *ProfileStore) UpdateLastScraped(ctx context.Context, ids []int64, at time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		`UPDATE profiles SET last_scraped_at = $1 WHERE id = ANY($2)`,
		at, pq.Array(ids))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
