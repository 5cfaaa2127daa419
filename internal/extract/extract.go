// Package extract turns loosely shaped scraper items into domain.Post records.
//
// Each supported provider shape has its own schema (linkedInItem, youTubeItem)
// and a named adapter. Optional fields never fail extraction; the only hard
// skips are items without a usable source url/content id, items that are not
// posts, and items that are not JSON objects.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"social_ingest/internal/domain"
)

var (
	ErrNoSourceID    = errors.New("no resolvable source url or content id")
	ErrNotAPost      = errors.New("item is not a post")
	ErrMalformedItem = errors.New("item is not a json object")
)

const (
	previewLength = 100
	UnknownName   = "Unknown"
	UnknownHandle = "unknown"
	defaultCCLang = "en"
)

var hashtagPattern = regexp.MustCompile(`#\w+`)

// Detect sniffs the item's structure. Channel or video shaped fields, or a
// youtube url, mean YouTube; everything else is treated as LinkedIn.
func Detect(item json.RawMessage) domain.Platform {
	var markers struct {
		ChannelName flexString `json:"channelName"`
		ChannelURL  flexString `json:"channelUrl"`
		VideoURL    flexString `json:"videoUrl"`
		URL         flexString `json:"url"`
	}
	if err := json.Unmarshal(item, &markers); err != nil {
		return domain.PlatformLinkedIn
	}

	if markers.ChannelName.String() != "" || markers.ChannelURL.String() != "" || markers.VideoURL.String() != "" {
		return domain.PlatformYouTube
	}
	url := strings.ToLower(markers.URL.String())
	if strings.Contains(url, "youtube.com") || strings.Contains(url, "youtu.be/") {
		return domain.PlatformYouTube
	}
	return domain.PlatformLinkedIn
}

// Extract detects the item's platform and runs the matching adapter.
func Extract(item json.RawMessage, now time.Time) (*domain.Post, error) {
	return ExtractAs(item, Detect(item), now)
}

// ExtractAs runs the adapter for an explicitly chosen platform.
func ExtractAs(item json.RawMessage, platform domain.Platform, now time.Time) (*domain.Post, error) {
	switch platform {
	case domain.PlatformYouTube:
		return FromYouTube(item, now)
	case domain.PlatformLinkedIn:
		return FromLinkedIn(item, now)
	default:
		return nil, fmt.Errorf("unsupported platform %q", platform)
	}
}

// Hashtags returns the #word tokens of text in first-seen order. Matching is
// case sensitive: "#AI" and "#ai" are distinct tags.
func Hashtags(text string) []string {
	matches := hashtagPattern.FindAllString(text, -1)
	tags := make([]string, 0, len(matches))
	seen := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		tags = append(tags, m)
	}
	return tags
}

// EngagementRate is total engagement over views as a percentage; 0 when
// there are no views.
func EngagementRate(total, views int) float64 {
	if views <= 0 {
		return 0
	}
	return float64(total) * 100 / float64(views)
}

func preview(content string) string {
	if utf8.RuneCountInString(content) <= previewLength {
		return content
	}
	runes := []rune(content)
	return string(runes[:previewLength]) + "..."
}

// stableID derives a content id from the source url when no platform id
// pattern matches, so re-running the same item still collides on upsert.
func stableID(prefix, sourceURL string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(sourceURL)))
	return prefix + hex.EncodeToString(sum[:8])
}

func finalize(p *domain.Post) *domain.Post {
	p.ContentPreview = preview(p.Content)
	p.Hashtags = Hashtags(p.Content)
	p.EngagementTotal = p.Likes + p.Comments + p.Shares
	p.EngagementRate = EngagementRate(p.EngagementTotal, p.Views)
	return p
}
