package metricool

import (
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"github.com/petroleumjelliffe/socialsync/internal/metrics"
)

// extractor pulls one canonical value out of a raw item. ok is false when the
// item does not carry a usable value.
type extractor func(raw RawPost) (value string, ok bool)

// Candidate fields, in priority order. Different platforms name the same
// concept differently; the first non-empty match wins.
var (
	idExtractors = fields("id", "postId", "videoId", "postUrl", "mediaId")

	timeExtractors = []extractor{
		dateTimeField("created_time"),
		dateTimeField("created"),
		dateTimeField("timestamp"),
		dateTimeField("createdTime"),
		dateTimeField("publishedAt"),
		dateTimeField("createTime"),
	}

	contentExtractors  = fields("message", "caption", "text", "description", "videoDescription")
	urlExtractors      = fields("permalink", "url", "shareUrl", "watchUrl")
	mediaExtractors    = fields("picture", "mediaUrl", "thumbnailUrl", "coverImageUrl")
	postTypeExtractors = fields("type", "mediaType")
)

// dropReason explains why a raw item was discarded
type dropReason string

const (
	dropMissingID        dropReason = "missing_id"
	dropMissingTimestamp dropReason = "missing_timestamp"
)

// ValidatePostData normalizes a raw item into a Post. Items without an id or
// a timestamp are dropped with a warning.
func (c *Client) ValidatePostData(raw RawPost, platform string) (Post, bool) {
	post, reason := normalize(raw, platform)
	if reason != "" {
		metrics.PostsDropped.WithLabelValues(platform, string(reason)).Inc()
		c.log.Warn().
			Str("platform", platform).
			Str("reason", string(reason)).
			Msg("Dropping incomplete post")
		c.log.Debug().Str("platform", platform).Interface("item", raw).Msg("Incomplete post data")
		return Post{}, false
	}

	metrics.PostsNormalized.WithLabelValues(platform).Inc()
	return post, true
}

func normalize(raw RawPost, platform string) (Post, dropReason) {
	id, ok := firstMatch(raw, idExtractors)
	if !ok {
		return Post{}, dropMissingID
	}

	created, ok := firstMatch(raw, timeExtractors)
	if !ok {
		return Post{}, dropMissingTimestamp
	}

	content, _ := firstMatch(raw, contentExtractors)
	postURL, _ := firstMatch(raw, urlExtractors)
	mediaURL, _ := firstMatch(raw, mediaExtractors)

	postType, ok := firstMatch(raw, postTypeExtractors)
	if !ok {
		postType = "post"
	}

	return Post{
		ID:          id,
		Content:     content,
		CreatedTime: created,
		Engagement:  engagementFor(platform).Rate(raw),
		Impressions: intField(raw, "impressions", "impressionsTotal"),
		Reach:       intField(raw, "reach", "viewCount"),
		Type:        postType,
		URL:         postURL,
		MediaURL:    mediaURL,
	}, ""
}

func firstMatch(raw RawPost, extractors []extractor) (string, bool) {
	for _, extract := range extractors {
		if v, ok := extract(raw); ok {
			return v, true
		}
	}
	return "", false
}

func fields(names ...string) []extractor {
	out := make([]extractor, len(names))
	for i, name := range names {
		out[i] = field(name)
	}
	return out
}

func field(name string) extractor {
	return func(raw RawPost) (string, bool) {
		return scalarString(raw[name])
	}
}

// dateTimeField accepts either a plain timestamp string or an object of the
// form {"dateTime": "...", "timezone": "..."} used by the v2 endpoints.
func dateTimeField(name string) extractor {
	return func(raw RawPost) (string, bool) {
		switch v := raw[name].(type) {
		case map[string]interface{}:
			return scalarString(v["dateTime"])
		case RawPost:
			return scalarString(v["dateTime"])
		default:
			return scalarString(v)
		}
	}
}

// scalarString renders a non-empty string or non-zero number.
func scalarString(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		if strings.TrimSpace(t) == "" {
			return "", false
		}
		return t, true
	case json.Number:
		if f, err := t.Float64(); err == nil && f == 0 {
			return "", false
		}
		return t.String(), true
	case float64:
		if t == 0 {
			return "", false
		}
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case int:
		if t == 0 {
			return "", false
		}
		return strconv.Itoa(t), true
	case int64:
		if t == 0 {
			return "", false
		}
		return strconv.FormatInt(t, 10), true
	default:
		return "", false
	}
}

// toFloat is a best-effort numeric coercion
func toFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// numberField returns the named value as a float, or 0
func numberField(raw RawPost, name string) float64 {
	f, ok := toFloat(raw[name])
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// intField returns the first convertible value among names
func intField(raw RawPost, names ...string) *int64 {
	for _, name := range names {
		if f, ok := toFloat(raw[name]); ok && !math.IsNaN(f) && !math.IsInf(f, 0) {
			n := int64(f)
			return &n
		}
	}
	return nil
}
