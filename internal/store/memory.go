package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"publication/api/internal/blobstore"
	"publication/api/internal/document"
)

// Memory is an in-process document store.
type Memory struct {
	primitives
	listeners

	mu   sync.RWMutex
	docs map[string]*document.Document
	now  func() time.Time
}

// NewMemory returns an empty store. A nil blobs uses an in-memory blob store.
func NewMemory(blobs blobstore.Store) *Memory {
	if blobs == nil {
		blobs = blobstore.NewMemory()
	}
	return &Memory{
		primitives: primitives{blobs: blobs},
		docs:       map[string]*document.Document{},
		now:        time.Now,
	}
}

// Get returns a copy of the stored document, or a new empty document when
// nothing is stored under ref.
func (m *Memory) Get(_ context.Context, ref document.Ref) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored, ok := m.docs[ref.String()]
	if !ok {
		return document.New(ref), nil
	}
	return stored.Clone(), nil
}

func (m *Memory) Exists(_ context.Context, ref document.Ref) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.docs[ref.String()]
	return ok, nil
}

func (m *Memory) Save(ctx context.Context, doc *document.Document, opts SaveOptions) error {
	m.mu.Lock()
	key := doc.Ref.String()
	stored, exists := m.docs[key]
	switch {
	case exists && (doc.IsNew || stored.Version != doc.Version):
		m.mu.Unlock()
		return fmt.Errorf("save %s: %w", key, ErrVersionConflict)
	case !exists && !doc.IsNew:
		m.mu.Unlock()
		return fmt.Errorf("save %s: %w", key, ErrVersionConflict)
	}
	if err := m.persistAttachments(ctx, doc); err != nil {
		m.mu.Unlock()
		return fmt.Errorf("save %s: %w", key, err)
	}

	doc.IsNew = false
	doc.Version++
	doc.UpdatedAt = m.now().UTC()
	copied := doc.Clone()
	releaseAttachments(copied)
	m.docs[key] = copied
	m.mu.Unlock()

	m.saved(ctx, doc, opts)
	return nil
}

func (m *Memory) Delete(ctx context.Context, doc *document.Document) error {
	m.mu.Lock()
	key := doc.Ref.String()
	if _, ok := m.docs[key]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("delete %s: %w", key, ErrNotFound)
	}
	delete(m.docs, key)
	m.mu.Unlock()

	m.deleted(ctx, doc.Ref)
	return nil
}

func (m *Memory) Find(_ context.Context, q Query) ([]document.Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []document.Ref
	for _, doc := range m.docs {
		if q.Wiki != "" && doc.Ref.Wiki != q.Wiki {
			continue
		}
		if matches(doc, q) {
			out = append(out, doc.Ref)
		}
	}
	sortRefs(out)
	return out, nil
}

// Refs lists every stored document of wiki, or of all wikis when wiki is empty.
func (m *Memory) Refs(_ context.Context, wiki string) ([]document.Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []document.Ref
	for _, doc := range m.docs {
		if wiki == "" || doc.Ref.Wiki == wiki {
			out = append(out, doc.Ref)
		}
	}
	sortRefs(out)
	return out, nil
}

// UniqueRef returns the first free reference among name, name_0, name_1, ...
func (m *Memory) UniqueRef(_ context.Context, wiki, space, name string) (document.Ref, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for attempt := 0; ; attempt++ {
		ref := document.NewRef(wiki, space, candidateName(name, attempt))
		if _, taken := m.docs[ref.String()]; !taken {
			return ref, nil
		}
	}
}

func sortRefs(refs []document.Ref) {
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
}
