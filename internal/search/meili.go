package search

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const idxPages = "publication_pages"

var errUnhealthy = errors.New("meilisearch unhealthy")

// Meili is the Meilisearch backed page index.
type Meili struct {
	client  meili.ServiceManager
	log     zerolog.Logger
	healthy atomic.Bool
	done    chan struct{}
}

// NewMeili creates a Meilisearch client and configures the page index. An
// unreachable server is not an error; the health loop picks it up later.
func NewMeili(url, apiKey string, log zerolog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		log:    log,
		done:   make(chan struct{}),
	}

	if _, err := client.Health(); err != nil {
		log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndex()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndex() {
	if _, err := m.client.CreateIndex(&meili.IndexConfig{
		Uid:        idxPages,
		PrimaryKey: "id",
	}); err != nil {
		m.log.Debug().Err(err).Str("index", idxPages).Msg("create index (may already exist)")
	}

	index := m.client.Index(idxPages)
	filterable := []interface{}{"wiki", "space", "locale"}
	if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
		m.log.Warn().Err(err).Str("index", idxPages).Msg("update filterable attributes")
	}
	searchable := []string{"title", "content", "name"}
	if _, err := index.UpdateSearchableAttributes(&searchable); err != nil {
		m.log.Warn().Err(err).Str("index", idxPages).Msg("update searchable attributes")
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info().Msg("meilisearch recovered, reconfiguring index")
				m.configureIndex()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

func (m *Meili) Search(q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, errUnhealthy
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}
	sr := &meili.SearchRequest{
		IndexUID:              idxPages,
		Query:                 q.Text,
		Limit:                 limit,
		Offset:                int64(q.Offset),
		AttributesToHighlight: []string{"title", "content"},
		AttributesToCrop:      []string{"content"},
		HighlightPreTag:       "<mark>",
		HighlightPostTag:      "</mark>",
	}
	var filters []string
	if q.Wiki != "" {
		filters = append(filters, fmt.Sprintf("wiki = %q", q.Wiki))
	}
	if q.Space != "" {
		filters = append(filters, fmt.Sprintf("space = %q", q.Space))
	}
	if len(filters) > 0 {
		sr.Filter = filters
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{
		Queries: []*meili.SearchRequest{sr},
	})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch search: %w", err)
	}

	var results []Result
	total := 0
	for _, r := range resp.Results {
		total += int(r.EstimatedTotalHits)
		for _, hit := range r.Hits {
			results = append(results, hitToResult(hit))
		}
	}
	return results, total, nil
}

type pageHit struct {
	Ref       string `json:"ref"`
	Space     string `json:"space"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	Formatted struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	} `json:"_formatted"`
}

// hitToResult prefers the highlighted fields and falls back to the raw ones.
func hitToResult(hit meili.Hit) Result {
	var h pageHit
	if raw, err := json.Marshal(hit); err == nil {
		_ = json.Unmarshal(raw, &h)
	}
	return Result{
		Ref:     h.Ref,
		Space:   h.Space,
		Title:   firstNonBlank(h.Formatted.Title, h.Title),
		Snippet: firstNonBlank(h.Formatted.Content, h.Content),
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if v := strings.TrimSpace(value); v != "" {
			return v
		}
	}
	return ""
}

// IndexPages adds or replaces pages in the index.
func (m *Meili) IndexPages(pages []PageRecord) error {
	if len(pages) == 0 {
		return nil
	}
	if !m.healthy.Load() {
		return errUnhealthy
	}
	if _, err := m.client.Index(idxPages).AddDocuments(pages, nil); err != nil {
		return fmt.Errorf("add pages: %w", err)
	}
	return nil
}

func (m *Meili) DeletePage(id string) error {
	if !m.healthy.Load() {
		return errUnhealthy
	}
	if _, err := m.client.Index(idxPages).DeleteDocument(id, nil); err != nil {
		return fmt.Errorf("delete page %s: %w", id, err)
	}
	return nil
}
