package notion

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryDatabase(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/databases/db-1/query", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, DefaultVersion, r.Header.Get("Notion-Version"))

		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))

		w.Write([]byte(`{
			"results": [
				{"id": "p1", "properties": {"Post ID": {"type": "title", "title": [{"plain_text": "abc"}]}}}
			],
			"has_more": true,
			"next_cursor": "c2"
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "", "db-1", nil)
	resp, err := c.QueryDatabase(context.Background(), "c1", 100)
	require.NoError(t, err)

	assert.Equal(t, float64(100), gotBody["page_size"])
	assert.Equal(t, "c1", gotBody["start_cursor"])

	require.Len(t, resp.Results, 1)
	assert.Equal(t, "abc", PostID(resp.Results[0].Properties))
	assert.True(t, resp.HasMore)
	require.NotNil(t, resp.NextCursor)
	assert.Equal(t, "c2", *resp.NextCursor)
}

func TestQueryDatabase_FirstPageOmitsCursor(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Write([]byte(`{"results": [], "has_more": false, "next_cursor": null}`))
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "secret", "", "db-1", nil).QueryDatabase(context.Background(), "", 100)
	require.NoError(t, err)
	assert.NotContains(t, gotBody, "start_cursor")
	assert.Nil(t, resp.NextCursor)
}

func TestCreatePage(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/pages", r.URL.Path)
		assert.Equal(t, "2022-06-28", r.Header.Get("Notion-Version"))
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &gotBody))
		w.Write([]byte(`{"id": "new-page"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret", "2022-06-28", "db-1", nil)
	page, err := c.CreatePage(context.Background(), Properties{
		PostIDProperty: Title("abc"),
		"Reach":        NumberValue(0),
		"URL":          URLValue("https://example.com"),
	})
	require.NoError(t, err)
	assert.Equal(t, "new-page", page.ID)

	parent := gotBody["parent"].(map[string]interface{})
	assert.Equal(t, "db-1", parent["database_id"])

	props := gotBody["properties"].(map[string]interface{})
	reach := props["Reach"].(map[string]interface{})
	assert.Equal(t, float64(0), reach["number"], "zero numbers must still be sent")
	title := props[PostIDProperty].(map[string]interface{})["title"].([]interface{})
	assert.Equal(t, "abc", title[0].(map[string]interface{})["text"].(map[string]interface{})["content"])
}

func TestAPIError(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		body         string
		wantConflict bool
		wantMessage  string
	}{
		{"conflict status", http.StatusConflict, `{"object":"error","status":409,"code":"conflict_error","message":"Conflict occurred while saving."}`, true, "Conflict occurred while saving."},
		{"conflict code on other status", http.StatusBadRequest, `{"status":400,"code":"conflict_error","message":"retry"}`, true, "retry"},
		{"validation error", http.StatusBadRequest, `{"status":400,"code":"validation_error","message":"bad property"}`, false, "bad property"},
		{"plain text body", http.StatusBadGateway, `upstream down`, false, "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewClient(srv.URL, "secret", "", "db-1", nil).CreatePage(context.Background(), Properties{})
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.StatusCode)
			assert.Equal(t, tt.wantMessage, apiErr.Message)
			assert.Equal(t, tt.wantConflict, IsConflict(err))
		})
	}
}

func TestIsConflict_NonAPIError(t *testing.T) {
	assert.False(t, IsConflict(nil))
	assert.False(t, IsConflict(context.Canceled))
}

func TestPlainText(t *testing.T) {
	assert.Equal(t, "hello", Title("hello").PlainText())
	assert.Equal(t, "body", RichTextValue("body").PlainText())
	assert.Equal(t, "", SelectValue("x").PlainText())
}
