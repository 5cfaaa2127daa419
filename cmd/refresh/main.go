package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"social_ingest/internal/config"
	"social_ingest/internal/domain"
	"social_ingest/internal/service"
	"social_ingest/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	profileType := flag.String("type", "", "refresh every profile of this type (own, competitor, team, inspiration, partner, other)")
	ids := flag.String("ids", "", "comma separated profile ids")
	all := flag.Bool("all", false, "refresh every profile")
	endpoint := flag.String("endpoint", "", "service base url (defaults to http.public_url, then http://localhost:8080)")
	timeout := flag.Duration("timeout", 10*time.Minute, "request timeout")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(*configPath, *profileType, *ids, *all, *endpoint, *timeout); err != nil {
		logger.Error("refresh failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath, profileType, idList string, all bool, endpoint string, timeout time.Duration) error {
	selectors := 0
	for _, set := range []bool{profileType != "", idList != "", all} {
		if set {
			selectors++
		}
	}
	if selectors != 1 {
		return errors.New("exactly one of --type, --ids or --all is required")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	db, err := sqlx.Connect("postgres", cfg.Database.DSN())
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	profiles, err := selectProfiles(ctx, postgres.NewProfileStore(db), profileType, idList, all)
	if err != nil {
		return err
	}
	if len(profiles) == 0 {
		fmt.Println("No profiles matched, nothing to refresh")
		return nil
	}

	fmt.Printf("Refreshing %d profiles:\n", len(profiles))
	for _, p := range profiles {
		last := "never"
		if p.LastScrapedAt != nil {
			last = p.LastScrapedAt.Format(time.RFC3339)
		}
		fmt.Printf("  %-6d %-30s %-12s last scraped %s\n", p.ID, p.DisplayName, p.ProfileType, last)
	}

	if endpoint == "" {
		endpoint = cfg.HTTP.PublicURL
	}
	if endpoint == "" {
		endpoint = "http://localhost:8080"
	}

	report, err := trigger(ctx, strings.TrimRight(endpoint, "/")+"/api/scrape", cfg.Auth.CronSecret, domain.ProfileIDs(profiles))
	if err != nil {
		return err
	}

	printReport(report)
	if !report.Success {
		return errors.New(report.Message)
	}
	for _, g := range report.Groups {
		if g.Error != "" {
			return fmt.Errorf("group %s failed: %s", g.Label, g.Error)
		}
	}
	return nil
}

type profileLister interface {
	List(ctx context.Context) ([]domain.Profile, error)
	ListByIDs(ctx context.Context, ids []int64) ([]domain.Profile, error)
	ListByType(ctx context.Context, profileType domain.ProfileType) ([]domain.Profile, error)
}

func selectProfiles(ctx context.Context, store profileLister, profileType, idList string, all bool) ([]domain.Profile, error) {
	switch {
	case all:
		return store.List(ctx)
	case profileType != "":
		return store.ListByType(ctx, domain.ProfileType(profileType))
	default:
		ids, err := parseIDs(idList)
		if err != nil {
			return nil, err
		}
		return store.ListByIDs(ctx, ids)
	}
}

func parseIDs(list string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid profile id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("no profile ids given")
	}
	return ids, nil
}

func trigger(ctx context.Context, url, token string, ids []int64) (*domain.ScrapeReport, error) {
	body, err := json.Marshal(service.ScrapeRequest{ProfileIDs: ids})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("scrape endpoint returned %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}

	var report domain.ScrapeReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &report, nil
}

func printReport(r *domain.ScrapeReport) {
	fmt.Println(r.Message)
	for _, g := range r.Groups {
		status := "ok"
		if g.Error != "" {
			status = "error: " + g.Error
		}
		fmt.Printf("  %-20s profiles=%d maxPosts=%d posts=%d new=%d updated=%d %s\n",
			g.Label, g.ProfileCount, g.MaxPosts, g.ItemsFetched, g.NewPosts, g.UpdatedPosts, status)
	}
	fmt.Printf("Total: %d posts found, %d new, %d updated\n", r.PostsFound, r.NewPosts, r.UpdatedPosts)
}
