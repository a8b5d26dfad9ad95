package posts

import (
	"testing"
	"time"
)

func scored(id, score int) Post {
	return Post{ID: id, Title: "Post", OpportunityScore: intPtr(score)}
}

func ids(posts []Post) []int {
	out := make([]int, len(posts))
	for i, p := range posts {
		out[i] = p.ID
	}
	return out
}

func equalIDs(got, want []int) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func TestOpportunitySortIsStable(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Load([]Post{scored(1, 50), scored(2, 80), scored(3, 50)})
	reg.SetSort(SortOpportunity)
	if got := ids(reg.View()); !equalIDs(got, []int{2, 1, 3}) {
		t.Fatalf("expected [2 1 3], got %v", got)
	}
	reg.SetSort(SortDate)
	if got := ids(reg.View()); !equalIDs(got, []int{1, 2, 3}) {
		t.Fatalf("expected fetch order, got %v", got)
	}
}

func TestOpportunitySortRanksUnscoredLast(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Load([]Post{{ID: 1}, scored(2, 0), {ID: 3}, scored(4, 10)})
	reg.SetSort(SortOpportunity)
	if got := ids(reg.View()); !equalIDs(got, []int{4, 2, 1, 3}) {
		t.Fatalf("expected [4 2 1 3], got %v", got)
	}
}

func TestFilterIsCaseInsensitiveSubstring(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Load([]Post{
		{ID: 1, Title: "Mortgage Calculator Guide"},
		{ID: 2, Title: "Baking bread"},
		{ID: 3, Title: "How to CALCULATE tips"},
	})
	reg.SetFilter("  calc ")
	if got := ids(reg.View()); !equalIDs(got, []int{1, 3}) {
		t.Fatalf("expected [1 3], got %v", got)
	}
	reg.SetFilter("")
	if got := len(reg.View()); got != 3 {
		t.Fatalf("expected 3 posts after clearing filter, got %d", got)
	}
}

func TestAppendPageMergesByID(t *testing.T) {
	reg := NewRegistry(nil)
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	first := scored(1, 70)
	first.Rationale = "good fit"
	first.ToolCreationDate = &created
	reg.Load([]Post{first, {ID: 2, Title: "two"}})

	reg.AppendPage([]Post{{ID: 1, Title: "one refreshed"}, {ID: 3, Title: "three"}})

	all := reg.All()
	if got := ids(all); !equalIDs(got, []int{1, 2, 3}) {
		t.Fatalf("expected [1 2 3], got %v", got)
	}
	merged := all[0]
	if merged.Title != "one refreshed" {
		t.Fatalf("expected refreshed title, got %q", merged.Title)
	}
	if merged.OpportunityScore == nil || *merged.OpportunityScore != 70 {
		t.Fatalf("expected score to survive merge")
	}
	if merged.Rationale != "good fit" {
		t.Fatalf("expected rationale to survive merge")
	}
	if merged.ToolCreationDate == nil || !merged.ToolCreationDate.Equal(created) {
		t.Fatalf("expected tool creation date to survive merge")
	}
}

func TestPatchUnknownIDIsNoop(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Load([]Post{{ID: 1, Title: "one"}})
	if reg.Patch(42, func(p *Post) { p.Title = "changed" }) {
		t.Fatalf("expected unknown id patch to report false")
	}
	if p, _ := reg.Get(1); p.Title != "one" {
		t.Fatalf("expected post untouched, got %q", p.Title)
	}
}

func TestPatchDoesNotLeakIntoSnapshots(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Load([]Post{{ID: 1, Title: "one"}})
	before := reg.View()
	reg.Patch(1, MarkToolInserted(77, time.Now()))
	if before[0].HasTool {
		t.Fatalf("expected earlier snapshot to stay unchanged")
	}
	after, ok := reg.Get(1)
	if !ok || !after.HasTool || after.ToolID == nil || *after.ToolID != 77 {
		t.Fatalf("expected tool 77 after patch, got %+v", after)
	}
	if after.ToolCreationDate == nil {
		t.Fatalf("expected tool creation date")
	}
}

func TestMarkToolRemovedClearsScore(t *testing.T) {
	reg := NewRegistry(nil)
	p := scored(5, 90)
	p.HasTool = true
	p.ToolID = intPtr(3)
	reg.Load([]Post{p})
	reg.Patch(5, MarkToolRemoved("<p>clean</p>"))
	got, _ := reg.Get(5)
	if got.HasTool || got.ToolID != nil || got.OpportunityScore != nil {
		t.Fatalf("expected tool state and score cleared, got %+v", got)
	}
	if got.RawContent != "<p>clean</p>" {
		t.Fatalf("expected content updated, got %q", got.RawContent)
	}
}

func TestApplyScoresIgnoresUnknownIDs(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Load([]Post{{ID: 1}, {ID: 2}})
	applied := reg.ApplyScores([]ScoreUpdate{{ID: 2, Score: 140, Rationale: "quiz"}, {ID: 9, Score: 10}})
	if applied != 1 {
		t.Fatalf("expected one applied score, got %d", applied)
	}
	got, _ := reg.Get(2)
	if got.OpportunityScore == nil || *got.OpportunityScore != 100 {
		t.Fatalf("expected clamped score 100, got %v", got.OpportunityScore)
	}
	if got.Rationale != "quiz" {
		t.Fatalf("expected rationale, got %q", got.Rationale)
	}
}

func TestPagination(t *testing.T) {
	reg := NewRegistry(nil)
	if _, ok := reg.NextPage(); ok {
		t.Fatalf("expected no next page before loading")
	}
	reg.Load([]Post{{ID: 1}})
	reg.SetPagination(1, 3)
	if next, ok := reg.NextPage(); !ok || next != 2 {
		t.Fatalf("expected next page 2, got %d %v", next, ok)
	}
	reg.SetPagination(3, 3)
	if _, ok := reg.NextPage(); ok {
		t.Fatalf("expected no next page on last page")
	}
	if page, total := reg.Pagination(); page != 3 || total != 3 {
		t.Fatalf("expected pagination 3/3, got %d/%d", page, total)
	}
}

func TestWithDerivedTool(t *testing.T) {
	p := Post{ID: 1, RawContent: `<p>x</p>[contentforge_tool id="12"]`, RawAvailable: true}.WithDerivedTool()
	if !p.HasTool || p.ToolID == nil || *p.ToolID != 12 {
		t.Fatalf("expected derived tool 12, got %+v", p)
	}
	p.RawContent = "<p>x</p>"
	p = p.WithDerivedTool()
	if p.HasTool || p.ToolID != nil {
		t.Fatalf("expected no tool after marker removal")
	}
}

func TestParseSortOrder(t *testing.T) {
	if order, err := ParseSortOrder("Opportunity"); err != nil || order != SortOpportunity {
		t.Fatalf("expected opportunity, got %q %v", order, err)
	}
	if _, err := ParseSortOrder("title"); err == nil {
		t.Fatalf("expected error for unknown order")
	}
}
