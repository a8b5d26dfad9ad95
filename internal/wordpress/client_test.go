package wordpress

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentforge/engine/internal/config"
	"contentforge/engine/internal/egress"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client, err := NewClient(config.SiteConfig{
		URL:         server.URL + "/",
		Username:    "editor",
		AppPassword: "abcd efgh",
	}, Options{RequestsPerSecond: -1, Transport: server.Client().Transport})
	require.NoError(t, err)
	return client
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestCheckSetup(t *testing.T) {
	registered := true
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/types/contentforge_tool", r.URL.Path)
		if !registered {
			writeJSON(w, http.StatusNotFound, map[string]string{"code": "rest_type_invalid"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"slug": ToolPostType})
	})
	ok, err := client.CheckSetup(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	registered = false
	ok, err = client.CheckSetup(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckSetupUnauthorized(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "incorrect_password", "message": "bad"})
	})
	_, err := client.CheckSetup(context.Background())
	require.ErrorIs(t, err, ErrUnauthorized)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, "incorrect_password", statusErr.Code)
}

func TestFetchPostsEditContext(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "editor", user)
		assert.Equal(t, "abcd efgh", pass)
		assert.Equal(t, "edit", r.URL.Query().Get("context"))
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		w.Header().Set("X-WP-TotalPages", "3")
		_, _ = io.WriteString(w, `[
			{"id":1,"date_gmt":"2024-05-01T10:00:00","link":"https://blog.example.com/a",
			 "title":{"raw":"Budget & you","rendered":"Budget &amp; you"},
			 "content":{"raw":"<p>a</p>\n\n[contentforge_tool id=\"9\"]","rendered":"<p>a</p>"},
			 "_embedded":{"wp:featuredmedia":[{"source_url":"https://blog.example.com/a.jpg"}]}},
			{"id":2,"date_gmt":"2024-04-01T10:00:00","link":"https://blog.example.com/b",
			 "title":{"raw":"B","rendered":"B"},"content":{"raw":"<p>b</p>","rendered":"<p>b</p>"}}
		]`)
	})
	page, err := client.FetchPosts(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Posts, 2)
	first := page.Posts[0]
	assert.Equal(t, "Budget & you", first.Title)
	assert.True(t, first.RawAvailable)
	assert.True(t, first.HasTool)
	require.NotNil(t, first.ToolID)
	assert.Equal(t, 9, *first.ToolID)
	assert.Equal(t, "https://blog.example.com/a.jpg", first.FeaturedImageURL)
	assert.Equal(t, 2024, first.Date.Year())
	assert.False(t, page.Posts[1].HasTool)
}

func TestFetchPostsFallsBackToViewContext(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Query().Get("context") == "edit" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"code": "rest_forbidden_context"})
			return
		}
		_, _ = io.WriteString(w, `[{"id":5,"title":{"rendered":"Rendered &amp; only"},"content":{"rendered":"<p>x</p>"}}]`)
	})
	page, err := client.FetchPosts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	assert.False(t, page.Posts[0].RawAvailable)
	assert.Equal(t, "Rendered & only", page.Posts[0].Title)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchPostsPastLastPage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"code": "rest_post_invalid_page_number"})
	})
	page, err := client.FetchPosts(context.Background(), 4)
	require.NoError(t, err)
	assert.Empty(t, page.Posts)
	assert.Equal(t, 3, page.TotalPages)
}

func TestFetchPostsFallsBackToFeed(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/feed/" {
			w.Header().Set("Content-Type", "application/rss+xml")
			_, _ = io.WriteString(w, `<?xml version="1.0"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/"><channel><title>Blog</title>
<item><title>Feed post</title><link>https://blog.example.com/feed-post</link><guid isPermaLink="false">https://blog.example.com/?p=42</guid>
<pubDate>Mon, 06 May 2024 10:00:00 +0000</pubDate><description>short</description>
<content:encoded><![CDATA[<p>full</p>[contentforge_tool id="3"]]]></content:encoded></item>
<item><title>No id</title><link>https://blog.example.com/x</link><guid>custom-guid</guid></item>
</channel></rss>`)
			return
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"code": "rest_no_route"})
	})
	page, err := client.FetchPosts(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, page.Posts, 1)
	post := page.Posts[0]
	assert.Equal(t, 42, post.ID)
	assert.False(t, post.RawAvailable)
	assert.True(t, post.HasTool, "rendered marker still detected")
	assert.Equal(t, 1, page.TotalPages)
}

func TestUpdatePostContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/wp-json/wp/v2/posts/7", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		writeJSON(w, http.StatusOK, map[string]any{
			"id":      7,
			"title":   map[string]string{"raw": "T", "rendered": "T"},
			"content": map[string]string{"raw": body["content"], "rendered": "<p>r</p>"},
		})
	})
	post, err := client.UpdatePostContent(context.Background(), 7, `<p>x</p>`+"\n\n"+`[contentforge_tool id="77"]`)
	require.NoError(t, err)
	assert.True(t, post.HasTool)
	assert.Equal(t, 77, *post.ToolID)
}

func TestCreateToolRecord(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/wp-json/wp/v2/contentforge_tool", r.URL.Path)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "publish", body["status"])
		assert.Equal(t, "<div>Q</div>", body["content"])
		writeJSON(w, http.StatusCreated, map[string]int{"id": 77})
	})
	id, err := client.CreateToolRecord(context.Background(), "Quiz", "<div>Q</div>")
	require.NoError(t, err)
	assert.Equal(t, 77, id)
}

func TestDeleteToolRecord(t *testing.T) {
	status := http.StatusOK
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "true", r.URL.Query().Get("force"))
		writeJSON(w, status, map[string]bool{"deleted": status == http.StatusOK})
	})
	require.NoError(t, client.DeleteToolRecord(context.Background(), 9))

	status = http.StatusNotFound
	require.NoError(t, client.DeleteToolRecord(context.Background(), 9), "already gone counts as deleted")

	status = http.StatusGone
	require.NoError(t, client.DeleteToolRecord(context.Background(), 9))

	status = http.StatusInternalServerError
	require.ErrorIs(t, client.DeleteToolRecord(context.Background(), 9), ErrUnavailable)
}

func TestClientPinsSiteHost(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})
	client.baseURL = "https://elsewhere.example.com"
	_, err := client.CheckSetup(context.Background())
	require.ErrorIs(t, err, egress.ErrBlocked)
}

func TestNewClientRejectsIncompleteSite(t *testing.T) {
	_, err := NewClient(config.SiteConfig{URL: "https://blog.example.com"}, Options{})
	assert.Error(t, err)
}
