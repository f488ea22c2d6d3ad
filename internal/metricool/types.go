package metricool

// RawPost is a single item as returned by the analytics API. Field names vary
// per platform, so items are kept as generic JSON objects until validated.
type RawPost map[string]interface{}

// Post is the canonical, platform-independent post record
type Post struct {
	ID          string  `json:"id"`
	Content     string  `json:"content"`
	CreatedTime string  `json:"created_time"`
	Engagement  float64 `json:"engagement"`
	Impressions *int64  `json:"impressions,omitempty"`
	Reach       *int64  `json:"reach,omitempty"`
	Type        string  `json:"type"`
	URL         string  `json:"url,omitempty"`
	MediaURL    string  `json:"media_url,omitempty"`
}

// envelope is the object form of a list response
type envelope struct {
	Data []RawPost `json:"data"`
}
