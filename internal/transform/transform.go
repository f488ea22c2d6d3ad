// Package transform maps normalized posts onto Notion database properties.
package transform

import (
	"strings"
	"time"

	"github.com/petroleumjelliffe/socialsync/internal/metricool"
	"github.com/petroleumjelliffe/socialsync/internal/notion"
	"github.com/petroleumjelliffe/socialsync/internal/textutil"
	"github.com/petroleumjelliffe/socialsync/internal/urlutil"
)

// MaxContentLength is the longest caption stored in the Content column
const MaxContentLength = 2000

// Column names in the destination database
const (
	ColPostID         = notion.PostIDProperty
	ColPlatform       = "Platform"
	ColDate           = "Date"
	ColContent        = "Content"
	ColURL            = "URL"
	ColMediaURL       = "Media URL"
	ColMediaType      = "Media Type"
	ColReach          = "Reach"
	ColImpressions    = "Impressions"
	ColEngagementRate = "Engagement Rate"
	ColSyncDate       = "Sync Date"
)

// Item builds the page properties for one post. syncTime is stamped into the
// Sync Date column. URL columns are omitted when the post has no link.
func Item(platform string, post metricool.Post, syncTime time.Time) notion.Properties {
	mediaType := strings.ToLower(post.Type)
	if mediaType == "" {
		mediaType = "post"
	}

	props := notion.Properties{
		ColPostID:         notion.Title(post.ID),
		ColPlatform:       notion.SelectValue(strings.ToLower(platform)),
		ColDate:           notion.DateValue(post.CreatedTime),
		ColContent:        notion.RichTextValue(textutil.Truncate(textutil.HTMLToText(post.Content), MaxContentLength)),
		ColMediaType:      notion.SelectValue(mediaType),
		ColReach:          notion.NumberValue(count(post.Reach)),
		ColImpressions:    notion.NumberValue(count(post.Impressions)),
		ColEngagementRate: notion.NumberValue(post.Engagement),
		ColSyncDate:       notion.DateValue(syncTime.UTC().Format(time.RFC3339)),
	}

	if u := urlutil.NormalizeOrKeep(post.URL); u != "" {
		props[ColURL] = notion.URLValue(u)
	}
	if u := strings.TrimSpace(post.MediaURL); u != "" {
		// CDN links are signed; normalizing would break them
		props[ColMediaURL] = notion.URLValue(u)
	}

	return props
}

func count(n *int64) float64 {
	if n == nil {
		return 0
	}
	return float64(*n)
}
