package search

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"publication/api/internal/document"
	"publication/api/internal/store"
	"publication/api/internal/wfrecord"
)

type fakeIndex struct {
	pages      map[string]PageRecord
	batches    int
	healthy    bool
	indexErr   error
	searchFn   func(q Query) ([]Result, int, error)
	deleteCall []string
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{pages: map[string]PageRecord{}, healthy: true}
}

func (f *fakeIndex) Search(q Query) ([]Result, int, error) {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return nil, 0, nil
}

func (f *fakeIndex) IndexPages(pages []PageRecord) error {
	if f.indexErr != nil {
		return f.indexErr
	}
	f.batches++
	for _, p := range pages {
		f.pages[p.ID] = p
	}
	return nil
}

func (f *fakeIndex) DeletePage(id string) error {
	f.deleteCall = append(f.deleteCall, id)
	delete(f.pages, id)
	return nil
}

func (f *fakeIndex) Healthy() bool { return f.healthy }

func target(ref document.Ref, hidden bool) *document.Document {
	doc := document.New(ref)
	doc.Title = "Public " + ref.Name
	doc.Content = "published text"
	doc.Hidden = hidden
	record := wfrecord.Create(doc)
	record.SetIsTarget(true)
	record.SetStatus(wfrecord.StatusPublished)
	return doc
}

func draft(ref document.Ref) *document.Document {
	doc := document.New(ref)
	doc.Hidden = true
	record := wfrecord.Create(doc)
	record.SetStatus(wfrecord.StatusDraft)
	return doc
}

func TestIndexable(t *testing.T) {
	ref := document.NewRef("xwiki", "Main", "Page")
	tests := []struct {
		name       string
		doc        *document.Document
		publishing bool
		want       bool
	}{
		{name: "visible target", doc: target(ref, false), want: true},
		{name: "hidden target", doc: target(ref, true), want: false},
		{name: "hidden target being published", doc: target(ref, true), publishing: true, want: true},
		{name: "draft", doc: draft(ref), publishing: true, want: false},
		{name: "plain page", doc: document.New(ref), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Indexable(tt.doc, tt.publishing); got != tt.want {
				t.Fatalf("Indexable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestServiceFollowsStore(t *testing.T) {
	ctx := context.Background()
	idx := newFakeIndex()
	svc := NewService(idx, zerolog.Nop())
	s := store.NewMemory(nil)
	s.Subscribe(svc)

	ref := document.NewRef("xwiki", "Main", "Page")
	if err := s.Save(ctx, draft(document.NewRef("xwiki", "Drafts", "Page")), store.SaveOptions{}); err != nil {
		t.Fatalf("Save() draft error = %v", err)
	}
	if len(idx.pages) != 0 {
		t.Fatalf("drafts must not be indexed: %+v", idx.pages)
	}

	doc := target(ref, false)
	if err := s.Save(ctx, doc, store.SaveOptions{Publishing: true}); err != nil {
		t.Fatalf("Save() target error = %v", err)
	}
	page, ok := idx.pages[PageID(ref)]
	if !ok || page.Ref != "xwiki:Main.Page" || page.Title != "Public Page" {
		t.Fatalf("expected target to be indexed, got %+v", idx.pages)
	}

	archived, err := s.Get(ctx, ref)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	archived.Hidden = true
	rec, _ := wfrecord.Of(archived)
	rec.SetStatus(wfrecord.StatusArchived)
	if err := s.Save(ctx, archived, store.SaveOptions{}); err != nil {
		t.Fatalf("Save() archived error = %v", err)
	}
	if len(idx.pages) != 0 {
		t.Fatalf("archived target should leave the index: %+v", idx.pages)
	}

	if err := s.Delete(ctx, archived); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(idx.deleteCall) != 2 || idx.deleteCall[1] != PageID(ref) {
		t.Fatalf("expected delete for %s, got %v", PageID(ref), idx.deleteCall)
	}
}

func TestServiceIndexFailureDoesNotFailSave(t *testing.T) {
	idx := newFakeIndex()
	idx.indexErr = errors.New("connection refused")
	s := store.NewMemory(nil)
	s.Subscribe(NewService(idx, zerolog.Nop()))

	if err := s.Save(context.Background(), target(document.NewRef("xwiki", "Main", "Page"), false), store.SaveOptions{}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(nil)
	for _, doc := range []*document.Document{
		target(document.NewRef("xwiki", "Main", "A"), false),
		target(document.NewRef("xwiki", "Main", "B"), true),
		target(document.NewRef("xwiki", "Help", "C"), false),
		draft(document.NewRef("xwiki", "Drafts", "A")),
		target(document.NewRef("other", "Main", "D"), false),
	} {
		if err := s.Save(ctx, doc, store.SaveOptions{}); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	idx := newFakeIndex()
	n, err := NewService(idx, zerolog.Nop()).Reindex(ctx, s, "xwiki")
	if err != nil {
		t.Fatalf("Reindex() error = %v", err)
	}
	if n != 2 || len(idx.pages) != 2 || idx.batches != 1 {
		t.Fatalf("expected 2 pages in one batch, got n=%d pages=%v batches=%d", n, idx.pages, idx.batches)
	}
	if _, ok := idx.pages[PageID(document.NewRef("xwiki", "Help", "C"))]; !ok {
		t.Fatalf("expected Help.C to be indexed: %v", idx.pages)
	}
}

func TestSearchWithoutIndex(t *testing.T) {
	resp := NewService(nil, zerolog.Nop()).Search(Query{Text: "hello"})
	if resp.Results == nil || resp.Total != 0 || resp.Query != "hello" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	idx := newFakeIndex()
	idx.searchFn = func(q Query) ([]Result, int, error) {
		if q.Wiki != "xwiki" {
			t.Fatalf("unexpected query %+v", q)
		}
		return []Result{{Ref: "xwiki:Main.Page", Title: "Page"}}, 1, nil
	}
	resp = NewService(idx, zerolog.Nop()).Search(Query{Text: "page", Wiki: "xwiki"})
	if resp.Total != 1 || resp.Results[0].Ref != "xwiki:Main.Page" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	idx.healthy = false
	resp = NewService(idx, zerolog.Nop()).Search(Query{Text: "page"})
	if len(resp.Results) != 0 {
		t.Fatalf("unhealthy index should return no results: %+v", resp)
	}
}

func TestPageIDIsStable(t *testing.T) {
	ref := document.NewRef("xwiki", "Main", "Page")
	if PageID(ref) != PageID(document.NewRef("xwiki", "Main", "Page")) {
		t.Fatal("PageID should be deterministic")
	}
	if PageID(ref) == PageID(document.NewRef("xwiki", "Main", "Other")) {
		t.Fatal("PageID should differ between pages")
	}
}

func TestHitToResultPrefersHighlights(t *testing.T) {
	hit := map[string]json.RawMessage{
		"ref":        json.RawMessage(`"xwiki:Main.Page"`),
		"space":      json.RawMessage(`"Main"`),
		"title":      json.RawMessage(`"Page"`),
		"content":    json.RawMessage(`"long published text"`),
		"_formatted": json.RawMessage(`{"title":"<mark>Page</mark>","content":"  "}`),
	}
	got := hitToResult(hit)
	want := Result{Ref: "xwiki:Main.Page", Space: "Main", Title: "<mark>Page</mark>", Snippet: "long published text"}
	if got != want {
		t.Fatalf("hitToResult() = %+v, want %+v", got, want)
	}
}
