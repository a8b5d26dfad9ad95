// Package wordpress talks to the WordPress REST API of the connected site.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/time/rate"

	"contentforge/engine/internal/config"
	"contentforge/engine/internal/egress"
	"contentforge/engine/internal/logging"
	"contentforge/engine/internal/posts"
)

const (
	// ToolPostType is the custom post type holding generated tools.
	ToolPostType = "contentforge_tool"

	defaultPerPage        = 20
	defaultTimeout        = 30 * time.Second
	defaultRequestsPerSec = 4
	maxErrorBodyBytes     = 4096
	invalidPageNumberCode = "rest_post_invalid_page_number"
	forbiddenContextCode  = "rest_forbidden_context"
	restPrefix            = "/wp-json/wp/v2"
)

// Options tune the REST client. A zero RequestsPerSecond uses the default
// pacing; a negative value disables pacing.
type Options struct {
	RequestsPerSecond float64
	Timeout           time.Duration
	PerPage           int
	Transport         http.RoundTripper
	Logger            *slog.Logger
}

// Page is one page of posts plus the total page count reported by the site.
type Page struct {
	Posts      []posts.Post
	TotalPages int
}

// Client is the WordPress adapter for one configured site.
type Client struct {
	baseURL     string
	username    string
	appPassword string
	perPage     int
	client      *http.Client
	limiter     *rate.Limiter
	feeds       *gofeed.Parser
	logger      *slog.Logger
}

func NewClient(site config.SiteConfig, opts Options) (*Client, error) {
	site, err := site.Validate()
	if err != nil {
		return nil, err
	}
	transport, err := egress.NewSiteRoundTripper(opts.Transport, site.URL)
	if err != nil {
		return nil, err
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	rps := opts.RequestsPerSecond
	if rps == 0 {
		rps = defaultRequestsPerSec
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	perPage := opts.PerPage
	if perPage <= 0 {
		perPage = defaultPerPage
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Nop()
	}
	httpClient := &http.Client{Timeout: timeout, Transport: transport}
	feeds := gofeed.NewParser()
	feeds.Client = httpClient
	return &Client{
		baseURL:     site.URL,
		username:    site.Username,
		appPassword: site.AppPassword,
		perPage:     perPage,
		client:      httpClient,
		limiter:     rate.NewLimiter(limit, 1),
		feeds:       feeds,
		logger:      logger.With("component", "wordpress"),
	}, nil
}

// CheckSetup reports whether the tool post type is registered on the site.
func (c *Client) CheckSetup(ctx context.Context) (bool, error) {
	err := c.do(ctx, "check_setup", http.MethodGet, "/types/"+ToolPostType, nil, nil, nil)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return false, err
}

// FetchPosts loads one page of posts with raw content. When the account may
// not read the edit context the page is fetched rendered-only. When the REST
// API is missing altogether the first page falls back to the RSS feed.
func (c *Client) FetchPosts(ctx context.Context, page int) (Page, error) {
	if page < 1 {
		page = 1
	}
	result, err := c.fetchPostsContext(ctx, page, "edit")
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.Code == forbiddenContextCode {
		c.logger.Warn("wordpress.edit_context_forbidden", "page", page)
		return c.fetchPostsContext(ctx, page, "view")
	}
	if err != nil && page == 1 && errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		c.logger.Warn("wordpress.rest_unavailable_using_feed", "error", err.Error())
		feedPosts, feedErr := c.FetchFeed(ctx)
		if feedErr != nil {
			return Page{}, errors.Join(err, feedErr)
		}
		return Page{Posts: feedPosts, TotalPages: 1}, nil
	}
	return result, err
}

func (c *Client) fetchPostsContext(ctx context.Context, page int, viewContext string) (Page, error) {
	query := url.Values{}
	query.Set("context", viewContext)
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(c.perPage))
	query.Set("status", "publish")
	query.Set("_embed", "wp:featuredmedia")
	var payload []restPost
	header := http.Header{}
	err := c.do(ctx, "fetch_posts", http.MethodGet, "/posts?"+query.Encode(), nil, &payload, header)
	if err != nil {
		var statusErr *StatusError
		if errors.As(err, &statusErr) && statusErr.Code == invalidPageNumberCode {
			return Page{TotalPages: page - 1}, nil
		}
		return Page{}, err
	}
	totalPages := 1
	if raw := header.Get("X-WP-TotalPages"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			totalPages = parsed
		}
	}
	result := Page{Posts: make([]posts.Post, 0, len(payload)), TotalPages: totalPages}
	for _, item := range payload {
		result.Posts = append(result.Posts, item.toPost())
	}
	c.logger.Debug("wordpress.posts_fetched", "page", page, "count", len(result.Posts), "total_pages", totalPages, "context", viewContext)
	return result, nil
}

// UpdatePostContent replaces the raw content of a post and returns the stored
// post as the site reports it.
func (c *Client) UpdatePostContent(ctx context.Context, postID int, rawContent string) (posts.Post, error) {
	body := map[string]any{"content": rawContent}
	var payload restPost
	path := fmt.Sprintf("/posts/%d?context=edit", postID)
	if err := c.do(ctx, "update_post", http.MethodPost, path, body, &payload, nil); err != nil {
		return posts.Post{}, err
	}
	return payload.toPost(), nil
}

// CreateToolRecord publishes a tool post and returns its id.
func (c *Client) CreateToolRecord(ctx context.Context, title, html string) (int, error) {
	body := map[string]any{
		"title":   title,
		"content": html,
		"status":  "publish",
	}
	var payload struct {
		ID int `json:"id"`
	}
	if err := c.do(ctx, "create_tool", http.MethodPost, "/"+ToolPostType, body, &payload, nil); err != nil {
		return 0, err
	}
	if payload.ID <= 0 {
		return 0, fmt.Errorf("wordpress create_tool: response missing id")
	}
	return payload.ID, nil
}

// DeleteToolRecord permanently deletes a tool post. A record that is already
// gone counts as deleted.
func (c *Client) DeleteToolRecord(ctx context.Context, toolID int) error {
	path := fmt.Sprintf("/%s/%d?force=true", ToolPostType, toolID)
	err := c.do(ctx, "delete_tool", http.MethodDelete, path, nil, nil, nil)
	if errors.Is(err, ErrNotFound) {
		c.logger.Info("wordpress.delete_tool_already_gone", "tool_id", toolID)
		return nil
	}
	return err
}

// FetchFeed reads the public RSS feed. Feed items only carry rendered HTML,
// so the returned posts are not editable.
func (c *Client) FetchFeed(ctx context.Context) ([]posts.Post, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	feed, err := c.feeds.ParseURLWithContext(c.baseURL+"/feed/", ctx)
	if err != nil {
		return nil, fmt.Errorf("wordpress feed: %w", err)
	}
	result := make([]posts.Post, 0, len(feed.Items))
	for _, item := range feed.Items {
		post, ok := feedItemToPost(item)
		if !ok {
			continue
		}
		result = append(result, post)
	}
	return result, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body any, out any, header http.Header) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+restPrefix+path, reader)
	if err != nil {
		return err
	}
	req.SetBasicAuth(c.username, c.appPassword)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	started := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, egress.ErrBlocked) {
			return egress.ErrBlocked
		}
		return fmt.Errorf("wordpress %s: %w", op, err)
	}
	defer resp.Body.Close()
	c.logger.Debug("wordpress.request", "op", op, "method", method, "status", resp.StatusCode, "duration_ms", time.Since(started).Milliseconds())
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return readStatusError(op, resp)
	}
	if header != nil {
		for key, values := range resp.Header {
			header[key] = values
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("wordpress %s: decode response: %w", op, err)
	}
	return nil
}

func readStatusError(op string, resp *http.Response) error {
	statusErr := &StatusError{Op: op, StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		statusErr.Code = payload.Code
		statusErr.Message = payload.Message
	} else {
		statusErr.Message = strings.TrimSpace(string(data))
	}
	return statusErr
}
