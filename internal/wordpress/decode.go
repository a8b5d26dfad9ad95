package wordpress

import (
	"html"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"contentforge/engine/internal/posts"
)

const wpDateLayout = "2006-01-02T15:04:05"

type restText struct {
	Raw      *string `json:"raw"`
	Rendered string  `json:"rendered"`
}

type restPost struct {
	ID       int      `json:"id"`
	DateGMT  string   `json:"date_gmt"`
	Link     string   `json:"link"`
	Title    restText `json:"title"`
	Content  restText `json:"content"`
	Embedded struct {
		FeaturedMedia []struct {
			SourceURL string `json:"source_url"`
		} `json:"wp:featuredmedia"`
	} `json:"_embedded"`
}

func (p restPost) toPost() posts.Post {
	title := html.UnescapeString(p.Title.Rendered)
	if p.Title.Raw != nil {
		title = *p.Title.Raw
	}
	post := posts.Post{
		ID:              p.ID,
		Title:           title,
		RenderedContent: p.Content.Rendered,
		Link:            p.Link,
	}
	if p.Content.Raw != nil {
		post.RawContent = *p.Content.Raw
		post.RawAvailable = true
	}
	if len(p.Embedded.FeaturedMedia) > 0 {
		post.FeaturedImageURL = p.Embedded.FeaturedMedia[0].SourceURL
	}
	if parsed, err := time.ParseInLocation(wpDateLayout, p.DateGMT, time.UTC); err == nil {
		post.Date = parsed
	}
	return post.WithDerivedTool()
}

func feedItemToPost(item *gofeed.Item) (posts.Post, bool) {
	id, ok := feedItemID(item)
	if !ok {
		return posts.Post{}, false
	}
	rendered := item.Content
	if rendered == "" {
		rendered = item.Description
	}
	post := posts.Post{
		ID:              id,
		Title:           item.Title,
		RenderedContent: rendered,
		Link:            item.Link,
	}
	if item.Image != nil {
		post.FeaturedImageURL = item.Image.URL
	}
	if item.PublishedParsed != nil {
		post.Date = item.PublishedParsed.UTC()
	}
	return post.WithDerivedTool(), true
}

// feedItemID reads the post id from the default WordPress guid, which has the
// form https://site/?p=123.
func feedItemID(item *gofeed.Item) (int, bool) {
	for _, candidate := range []string{item.GUID, item.Link} {
		parsed, err := url.Parse(strings.TrimSpace(candidate))
		if err != nil {
			continue
		}
		if id, err := strconv.Atoi(parsed.Query().Get("p")); err == nil && id > 0 {
			return id, true
		}
	}
	return 0, false
}
