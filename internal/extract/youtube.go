package extract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"social_ingest/internal/domain"
)

var (
	videoIDPatterns = []*regexp.Regexp{
		regexp.MustCompile(`[?&]v=([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`youtu\.be/([a-zA-Z0-9_-]{11})`),
		regexp.MustCompile(`/shorts/([a-zA-Z0-9_-]{11})`),
	}
	channelHandlePattern = regexp.MustCompile(`@[\w-]+`)
)

type youTubeItem struct {
	ID       flexString `json:"id"`
	VideoID  flexString `json:"videoId"`
	URL      flexString `json:"url"`
	VideoURL flexString `json:"videoUrl"`

	Title flexString `json:"title"`
	Name  flexString `json:"name"`

	Subtitles    transcriptField `json:"subtitles"`
	Transcript   transcriptField `json:"transcript"`
	CaptionsText flexString      `json:"captionsText"`
	Description  flexString      `json:"description"`
	Text         flexString      `json:"text"`

	SubtitlesLanguage  flexString `json:"subtitlesLanguage"`
	TranscriptLanguage flexString `json:"transcriptLanguage"`
	DefaultLanguage    flexString `json:"defaultLanguage"`

	ViewCount     flexInt `json:"viewCount"`
	Views         flexInt `json:"views"`
	Likes         flexInt `json:"likes"`
	LikeCount     flexInt `json:"likeCount"`
	CommentsCount flexInt `json:"commentsCount"`
	CommentCount  flexInt `json:"commentCount"`
	Comments      flexInt `json:"comments"`

	Duration        durationField `json:"duration"`
	LengthSeconds   durationField `json:"lengthSeconds"`
	DurationSeconds durationField `json:"durationSeconds"`

	Date        dateField `json:"date"`
	PublishedAt dateField `json:"publishedAt"`
	UploadDate  dateField `json:"uploadDate"`

	ChannelName    flexString `json:"channelName"`
	AuthorName     flexString `json:"authorName"`
	ChannelTitle   flexString `json:"channelTitle"`
	ChannelURL     flexString `json:"channelUrl"`
	AuthorURL      flexString `json:"authorUrl"`
	ChannelHandle  flexString `json:"channelHandle"`
	AuthorUsername flexString `json:"authorUsername"`
}

// FromYouTube maps a video item. Shares are always 0 and the transcript, when
// present, is preferred over the description as content.
func FromYouTube(raw json.RawMessage, now time.Time) (*domain.Post, error) {
	var item youTubeItem
	if err := json.Unmarshal(raw, &item); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedItem, err)
	}

	sourceURL := firstString(item.URL, item.VideoURL)
	videoID := videoIDFromURL(sourceURL)
	if videoID == "" {
		videoID = firstString(item.ID, item.VideoID)
	}

	var postID string
	switch {
	case videoID != "":
		postID = "yt_" + videoID
		if sourceURL == "" {
			sourceURL = "https://www.youtube.com/watch?v=" + videoID
		}
	case sourceURL != "":
		postID = stableID("yt_h_", sourceURL)
	default:
		return nil, ErrNoSourceID
	}

	transcript := item.Subtitles
	if transcript.text == "" {
		transcript = item.Transcript
	}
	if transcript.text == "" {
		transcript = transcriptField{text: item.CaptionsText.String()}
	}

	post := &domain.Post{
		ID:          postID,
		Platform:    domain.PlatformYouTube,
		URL:         sourceURL,
		Title:       firstString(item.Title, item.Name),
		Content:     transcript.text,
		PublishedAt: firstDate(item.Date, item.PublishedAt, item.UploadDate).resolve(now),
		Views:       firstInt(item.ViewCount, item.Views),
		Likes:       firstInt(item.Likes, item.LikeCount),
		Comments:    firstInt(item.CommentsCount, item.CommentCount, item.Comments),
		MediaType:   domain.MediaTypeVideo,
		AuthorName:  firstString(item.ChannelName, item.AuthorName, item.ChannelTitle),
	}
	if post.Content == "" {
		post.Content = firstString(item.Description, item.Text)
	}
	if post.AuthorName == "" {
		post.AuthorName = UnknownName
	}
	post.AuthorUsername = channelHandle(item)

	if d := firstDuration(item.Duration, item.LengthSeconds, item.DurationSeconds); d > 0 {
		post.VideoDuration = &d
	}

	if transcript.text != "" {
		lang := firstString(item.SubtitlesLanguage, item.TranscriptLanguage, item.DefaultLanguage)
		if lang == "" {
			lang = transcript.language
		}
		if lang == "" {
			lang = defaultCCLang
		}
		post.TranscriptLanguage = &lang
	}

	return finalize(post), nil
}

func videoIDFromURL(sourceURL string) string {
	for _, p := range videoIDPatterns {
		if m := p.FindStringSubmatch(sourceURL); m != nil {
			return m[1]
		}
	}
	return ""
}

// channelHandle prefers the @handle embedded in the channel url, then an
// explicit handle field, normalized to carry the leading "@".
func channelHandle(item youTubeItem) string {
	if h := channelHandlePattern.FindString(firstString(item.ChannelURL, item.AuthorURL)); h != "" {
		return h
	}
	h := firstString(item.ChannelHandle, item.AuthorUsername)
	if h == "" {
		return UnknownHandle
	}
	if !strings.HasPrefix(h, "@") {
		h = "@" + h
	}
	return h
}
