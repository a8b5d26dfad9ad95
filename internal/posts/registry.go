package posts

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"contentforge/engine/internal/logging"
)

type SortOrder string

const (
	SortDate        SortOrder = "date"
	SortOpportunity SortOrder = "opportunity"
)

func ParseSortOrder(value string) (SortOrder, error) {
	switch SortOrder(strings.ToLower(strings.TrimSpace(value))) {
	case SortDate, "":
		return SortDate, nil
	case SortOpportunity:
		return SortOpportunity, nil
	default:
		return "", fmt.Errorf("unknown sort order %q", value)
	}
}

// Registry owns the fetched post collection and a filtered, sorted view of it.
// Each mutation swaps in a new snapshot under the lock.
type Registry struct {
	mu         sync.Mutex
	posts      []Post
	view       []Post
	filter     string
	order      SortOrder
	page       int
	totalPages int
	logger     *slog.Logger
}

func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Registry{order: SortDate, logger: logger}
}

// Load replaces the whole collection.
func (r *Registry) Load(posts []Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = dedupe(posts)
	r.page = 0
	r.totalPages = 0
	r.recompute()
}

// AppendPage merges another page by id. Score, rationale and tool creation
// date survive when the incoming entry does not carry them.
func (r *Registry) AppendPage(posts []Post) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make([]Post, len(r.posts), len(r.posts)+len(posts))
	copy(next, r.posts)
	index := make(map[int]int, len(next))
	for i, p := range next {
		index[p.ID] = i
	}
	for _, incoming := range posts {
		incoming = incoming.clone()
		at, ok := index[incoming.ID]
		if !ok {
			index[incoming.ID] = len(next)
			next = append(next, incoming)
			continue
		}
		existing := next[at]
		if incoming.OpportunityScore == nil {
			incoming.OpportunityScore = existing.OpportunityScore
		}
		if incoming.Rationale == "" {
			incoming.Rationale = existing.Rationale
		}
		if incoming.ToolCreationDate == nil {
			incoming.ToolCreationDate = existing.ToolCreationDate
		}
		next[at] = incoming
	}
	r.posts = next
	r.recompute()
}

// Patch applies fn to the post with the given id. Unknown ids are logged and
// ignored; they come from races with posts that have since left the list.
func (r *Registry) Patch(id int, fn func(*Post)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.posts {
		if p.ID != id {
			continue
		}
		next := make([]Post, len(r.posts))
		copy(next, r.posts)
		updated := p.clone()
		fn(&updated)
		updated.ID = id
		next[i] = updated
		r.posts = next
		r.recompute()
		return true
	}
	r.logger.Warn("posts.patch_unknown_id", "post_id", id)
	return false
}

// Replace swaps in a post returned by an upstream update, keeping local
// scoring fields.
func (r *Registry) Replace(post Post) bool {
	return r.Patch(post.ID, func(p *Post) {
		score, rationale, created := p.OpportunityScore, p.Rationale, p.ToolCreationDate
		*p = post.clone()
		if p.OpportunityScore == nil {
			p.OpportunityScore = score
		}
		if p.Rationale == "" {
			p.Rationale = rationale
		}
		if p.ToolCreationDate == nil && p.HasTool {
			p.ToolCreationDate = created
		}
	})
}

// ApplyScores merges a scoring batch and returns how many posts matched.
func (r *Registry) ApplyScores(updates []ScoreUpdate) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	byID := make(map[int]ScoreUpdate, len(updates))
	for _, update := range updates {
		byID[update.ID] = update
	}
	next := make([]Post, len(r.posts))
	applied := 0
	for i, p := range r.posts {
		update, ok := byID[p.ID]
		if ok {
			p = p.clone()
			p.OpportunityScore = intPtr(clampScore(update.Score))
			p.Rationale = update.Rationale
			applied++
		}
		next[i] = p
	}
	r.posts = next
	r.recompute()
	return applied
}

func (r *Registry) SetFilter(query string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filter = strings.ToLower(strings.TrimSpace(query))
	r.recompute()
}

func (r *Registry) SetSort(order SortOrder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if order != SortOpportunity {
		order = SortDate
	}
	r.order = order
	r.recompute()
}

// SetPagination records the last fetched page and the upstream page count.
func (r *Registry) SetPagination(page, totalPages int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.page = page
	r.totalPages = totalPages
}

// Pagination returns the last fetched page and the upstream page count.
func (r *Registry) Pagination() (page, totalPages int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.page, r.totalPages
}

// NextPage returns the page to fetch next, if any remain.
func (r *Registry) NextPage() (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.page == 0 || r.page >= r.totalPages {
		return 0, false
	}
	return r.page + 1, true
}

// Reset discards everything, as on disconnect.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.posts = nil
	r.view = nil
	r.filter = ""
	r.order = SortDate
	r.page = 0
	r.totalPages = 0
}

// View returns a copy of the filtered, sorted posts.
func (r *Registry) View() []Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneAll(r.view)
}

// All returns the collection in fetch order.
func (r *Registry) All() []Post {
	r.mu.Lock()
	defer r.mu.Unlock()
	return cloneAll(r.posts)
}

func (r *Registry) Get(id int) (Post, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.posts {
		if p.ID == id {
			return p.clone(), true
		}
	}
	return Post{}, false
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.posts)
}

func (r *Registry) recompute() {
	view := make([]Post, 0, len(r.posts))
	for _, p := range r.posts {
		if r.filter != "" && !strings.Contains(strings.ToLower(p.Title), r.filter) {
			continue
		}
		view = append(view, p)
	}
	if r.order == SortOpportunity {
		sort.SliceStable(view, func(i, j int) bool {
			return view[i].ScoreKey() > view[j].ScoreKey()
		})
	}
	r.view = view
}

func dedupe(posts []Post) []Post {
	seen := make(map[int]bool, len(posts))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		out = append(out, p.clone())
	}
	return out
}

func cloneAll(posts []Post) []Post {
	out := make([]Post, len(posts))
	for i, p := range posts {
		out[i] = p.clone()
	}
	return out
}
