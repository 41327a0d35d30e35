package search

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"publication/api/internal/document"
	"publication/api/internal/store"
	"publication/api/internal/wfrecord"
)

const reindexBatch = 200

type index interface {
	Search(q Query) ([]Result, int, error)
	IndexPages(pages []PageRecord) error
	DeletePage(id string) error
	Healthy() bool
}

type pageSource interface {
	Refs(ctx context.Context, wiki string) ([]document.Ref, error)
	Get(ctx context.Context, ref document.Ref) (*document.Document, error)
}

// Service follows store saves and deletes to keep the page index current. A
// nil index disables search without failing callers.
type Service struct {
	index index
	log   zerolog.Logger
}

func NewService(idx index, log zerolog.Logger) *Service {
	return &Service{index: idx, log: log}
}

// Indexable reports whether doc belongs in the index. A publish save counts
// even before the target is visible.
func Indexable(doc *document.Document, publishing bool) bool {
	record, ok := wfrecord.Of(doc)
	if !ok || !record.IsTarget() {
		return false
	}
	return publishing || !doc.Hidden
}

func (s *Service) Search(q Query) Response {
	if s.index == nil || !s.index.Healthy() {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.index.Search(q)
	if err != nil {
		s.log.Warn().Err(err).Str("query", q.Text).Msg("search")
		return Response{Results: []Result{}, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) DocumentSaved(_ context.Context, ev store.SaveEvent) {
	if s.index == nil {
		return
	}
	doc := ev.Document
	if Indexable(doc, ev.Publishing) {
		if err := s.index.IndexPages([]PageRecord{RecordOf(doc)}); err != nil {
			s.log.Warn().Err(err).Str("document", doc.Ref.String()).Msg("index page")
		}
		return
	}
	if record, ok := wfrecord.Of(doc); ok && record.IsTarget() {
		s.remove(doc.Ref)
	}
}

func (s *Service) DocumentDeleted(_ context.Context, ref document.Ref) {
	if s.index == nil {
		return
	}
	s.remove(ref)
}

func (s *Service) remove(ref document.Ref) {
	if err := s.index.DeletePage(PageID(ref)); err != nil {
		s.log.Warn().Err(err).Str("document", ref.String()).Msg("remove page from index")
	}
}

// Reindex pushes every visible target of wiki into the index and returns how
// many pages were sent.
func (s *Service) Reindex(ctx context.Context, source pageSource, wiki string) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	refs, err := source.Refs(ctx, wiki)
	if err != nil {
		return 0, fmt.Errorf("list documents: %w", err)
	}

	total := 0
	batch := make([]PageRecord, 0, reindexBatch)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := s.index.IndexPages(batch); err != nil {
			return fmt.Errorf("index pages: %w", err)
		}
		total += len(batch)
		batch = batch[:0]
		return nil
	}
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		doc, err := source.Get(ctx, ref)
		if err != nil {
			return total, fmt.Errorf("load %s: %w", ref, err)
		}
		if !Indexable(doc, false) {
			continue
		}
		batch = append(batch, RecordOf(doc))
		if len(batch) == reindexBatch {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	s.log.Info().Str("wiki", wiki).Int("pages", total).Msg("reindexed published pages")
	return total, nil
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
