package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"social_ingest/internal/domain"
)

var activityPattern = regexp.MustCompile(`activity[-:](\d+)`)

type linkedInItem struct {
	Type        flexString `json:"type"`
	PostURL     flexString `json:"postUrl"`
	LinkedinURL flexString `json:"linkedinUrl"`
	URL         flexString `json:"url"`

	Text    flexString `json:"text"`
	Content flexString `json:"content"`

	Engagement    engagementBlock `json:"engagement"`
	LikesCount    flexInt         `json:"likesCount"`
	Likes         flexInt         `json:"likes"`
	CommentsCount flexInt         `json:"commentsCount"`
	Comments      flexInt         `json:"comments"`
	SharesCount   flexInt         `json:"sharesCount"`
	Shares        flexInt         `json:"shares"`
	Reposts       flexInt         `json:"reposts"`
	ViewsCount    flexInt         `json:"viewsCount"`
	Views         flexInt         `json:"views"`

	PublishedAt dateField `json:"publishedAt"`
	PostedAt    dateField `json:"postedAt"`

	AuthorName     flexString  `json:"authorName"`
	AuthorUsername flexString  `json:"authorUsername"`
	Author         authorField `json:"author"`

	Images flexList `json:"images"`
	Media  flexList `json:"media"`
}

type engagementBlock struct {
	Likes       flexInt `json:"likes"`
	Comments    flexInt `json:"comments"`
	Shares      flexInt `json:"shares"`
	Impressions flexInt `json:"impressions"`
}

func (e *engagementBlock) UnmarshalJSON(b []byte) error {
	type plain engagementBlock
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		*e = engagementBlock{}
		return nil
	}
	*e = engagementBlock(p)
	return nil
}

// FromLinkedIn maps a LinkedIn post item. Items typed as something other than
// "post" (reactions, comments) are skipped with ErrNotAPost.
func FromLinkedIn(raw json.RawMessage, now time.Time) (*domain.Post, error) {
	var item linkedInItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}

	if t := item.Type.String(); t != "" && t != "post" {
		return nil, fmt.Errorf("%w: type %q", ErrNotAPost, t)
	}

	sourceURL := firstString(item.PostURL, item.LinkedinURL, item.URL)
	if sourceURL == "" {
		return nil, ErrNoSourceID
	}

	post := &domain.Post{
		ID:             linkedInPostID(sourceURL),
		Platform:       domain.PlatformLinkedIn,
		URL:            sourceURL,
		Content:        firstString(item.Text, item.Content),
		PublishedAt:    firstDate(item.PublishedAt, item.PostedAt).resolve(now),
		Likes:          firstInt(item.Engagement.Likes, item.LikesCount, item.Likes),
		Comments:       firstInt(item.Engagement.Comments, item.CommentsCount, item.Comments),
		Shares:         firstInt(item.Engagement.Shares, item.SharesCount, item.Shares, item.Reposts),
		Views:          firstInt(item.Engagement.Impressions, item.ViewsCount, item.Views),
		MediaType:      domain.MediaTypeText,
		AuthorName:     UnknownName,
		AuthorUsername: UnknownHandle,
	}

	if item.Images > 0 || item.Media > 0 {
		post.MediaType = domain.MediaTypeImage
	}

	if item.Author.name != "" {
		post.AuthorName = item.Author.name
	}
	if item.Author.handle != "" {
		post.AuthorUsername = item.Author.handle
	}
	if name := item.AuthorName.String(); name != "" {
		post.AuthorName = name
	}
	if handle := item.AuthorUsername.String(); handle != "" {
		post.AuthorUsername = handle
	}

	return finalize(post), nil
}

func linkedInPostID(sourceURL string) string {
	if m := activityPattern.FindStringSubmatch(sourceURL); m != nil {
		return m[1]
	}
	return stableID("li_h_", sourceURL)
}
