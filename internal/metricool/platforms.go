package metricool

import (
	"context"
	"net/url"
	"sort"
	"strings"
	"time"
)

const (
	compactDate = "20060102"
	isoDateTime = "2006-01-02T15:04:05"
)

// platform describes how one network is queried and scored
type platform struct {
	Endpoint string
	// ISODates selects from/to timestamps instead of compact start/end dates
	ISODates   bool
	Params     map[string]string
	Engagement EngagementFormula
}

var defaultEngagement = ReportedEngagement{Field: "engagement"}

var platforms = map[string]platform{
	"facebook": {
		Endpoint: "/stats/facebook/posts",
		Params: map[string]string{
			"type":       "all",
			"sortcolumn": "reactions,engagement,shares,impressions,impressionsUnique,clicks,linkclicks,comments,videoViews,videoTimeWatched",
		},
		Engagement: defaultEngagement,
	},
	"instagram": {
		Endpoint: "/stats/instagram/posts",
		Params: map[string]string{
			"includeStories": "true",
			"sortcolumn":     "engagement,impressions,reach,likes,comments,saves",
		},
		Engagement: defaultEngagement,
	},
	"linkedin": {
		Endpoint: "/stats/linkedin/posts",
		Params: map[string]string{
			"type":       "all",
			"sortcolumn": "likes,clicks,impressions,engagement,comments",
		},
		Engagement: defaultEngagement,
	},
	"twitter": {
		Endpoint: "/stats/twitter/posts",
		Params: map[string]string{
			"includeReplies": "true",
			"sortcolumn":     "engagement,impressions,retweets,replies,likes",
		},
		Engagement: defaultEngagement,
	},
	"youtube": {
		Endpoint: "/v2/analytics/posts/youtube",
		ISODates: true,
		Params: map[string]string{
			"sortcolumn": "views,comments,likes,engagement",
		},
		Engagement: InteractionRatio{Views: "views", Interactions: []string{"likes", "comments"}},
	},
	"tiktok": {
		Endpoint: "/v2/analytics/posts/tiktok",
		ISODates: true,
		Params: map[string]string{
			"sortcolumn": "viewCount,likeCount,commentCount,shareCount",
		},
		Engagement: InteractionRatio{Views: "viewCount", Interactions: []string{"likeCount", "commentCount", "shareCount"}},
	},
}

// SupportedPlatforms lists the platform names FetchPlatformData accepts
func SupportedPlatforms() []string {
	names := make([]string, 0, len(platforms))
	for name := range platforms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func engagementFor(name string) EngagementFormula {
	if p, ok := platforms[name]; ok && p.Engagement != nil {
		return p.Engagement
	}
	return defaultEngagement
}

// FetchPlatformData fetches and validates posts published on a platform
// between start and end, both given as YYYYMMDD (dashes are tolerated).
// Unsupported platforms and failed requests yield an empty result.
func (c *Client) FetchPlatformData(ctx context.Context, name, start, end string) []Post {
	p, ok := platforms[name]
	if !ok {
		c.log.Warn().Str("platform", name).Msg("Platform not supported")
		return nil
	}

	params, err := windowParams(p, start, end)
	if err != nil {
		c.log.Error().Err(err).Str("platform", name).Str("start", start).Str("end", end).Msg("Invalid date window")
		return nil
	}
	for k, v := range p.Params {
		params.Set(k, v)
	}

	c.log.Info().Str("platform", name).Str("start", start).Str("end", end).Msg("Fetching posts")
	raw := c.FetchData(ctx, p.Endpoint, params)

	posts := make([]Post, 0, len(raw))
	for _, item := range raw {
		if post, ok := c.ValidatePostData(item, name); ok {
			posts = append(posts, post)
		}
	}

	if len(posts) == 0 {
		c.log.Warn().Str("platform", name).Msg("No valid data retrieved")
		return nil
	}

	c.log.Info().Str("platform", name).Int("count", len(posts)).Msg("Retrieved and validated posts")
	return posts
}

// windowParams encodes the date window for the platform's API generation
func windowParams(p platform, start, end string) (url.Values, error) {
	startDate, err := time.Parse(compactDate, strings.ReplaceAll(start, "-", ""))
	if err != nil {
		return nil, err
	}
	endDate, err := time.Parse(compactDate, strings.ReplaceAll(end, "-", ""))
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("timezone", "UTC")
	if p.ISODates {
		params.Set("from", startDate.Format(isoDateTime))
		params.Set("to", endDate.Format(isoDateTime))
	} else {
		params.Set("start", startDate.Format(compactDate))
		params.Set("end", endDate.Format(compactDate))
	}
	return params, nil
}
