package notion

// Properties is a page property map keyed by database column name
type Properties map[string]Property

// Property is one typed page property. Only the field matching Type is set.
type Property struct {
	Type     string     `json:"type,omitempty"`
	Title    []RichText `json:"title,omitempty"`
	RichText []RichText `json:"rich_text,omitempty"`
	Select   *Select    `json:"select,omitempty"`
	Date     *Date      `json:"date,omitempty"`
	URL      *string    `json:"url,omitempty"`
	Number   *float64   `json:"number,omitempty"`
}

// RichText is a rich text fragment
type RichText struct {
	Type      string `json:"type,omitempty"`
	Text      *Text  `json:"text,omitempty"`
	PlainText string `json:"plain_text,omitempty"`
}

// Text is the content of a text fragment
type Text struct {
	Content string `json:"content"`
}

// Select is a select option
type Select struct {
	Name string `json:"name"`
}

// Date is a date property value
type Date struct {
	Start string `json:"start"`
}

// Page is a database row
type Page struct {
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
}

// QueryResponse is one page of database query results
type QueryResponse struct {
	Results    []Page  `json:"results"`
	HasMore    bool    `json:"has_more"`
	NextCursor *string `json:"next_cursor"`
}

type queryRequest struct {
	PageSize    int    `json:"page_size,omitempty"`
	StartCursor string `json:"start_cursor,omitempty"`
}

type parent struct {
	DatabaseID string `json:"database_id"`
}

type createPageRequest struct {
	Parent     parent     `json:"parent"`
	Properties Properties `json:"properties"`
}

// Title builds a title property
func Title(s string) Property {
	return Property{Type: "title", Title: []RichText{textFragment(s)}}
}

// RichTextValue builds a rich_text property
func RichTextValue(s string) Property {
	return Property{Type: "rich_text", RichText: []RichText{textFragment(s)}}
}

// SelectValue builds a select property
func SelectValue(name string) Property {
	return Property{Type: "select", Select: &Select{Name: name}}
}

// DateValue builds a date property
func DateValue(start string) Property {
	return Property{Type: "date", Date: &Date{Start: start}}
}

// URLValue builds a url property
func URLValue(u string) Property {
	return Property{Type: "url", URL: &u}
}

// NumberValue builds a number property
func NumberValue(n float64) Property {
	return Property{Type: "number", Number: &n}
}

func textFragment(s string) RichText {
	return RichText{Type: "text", Text: &Text{Content: s}}
}

// PlainText concatenates the text of a title or rich_text property
func (p Property) PlainText() string {
	fragments := p.Title
	if len(fragments) == 0 {
		fragments = p.RichText
	}

	var out string
	for _, f := range fragments {
		switch {
		case f.PlainText != "":
			out += f.PlainText
		case f.Text != nil:
			out += f.Text.Content
		}
	}
	return out
}
