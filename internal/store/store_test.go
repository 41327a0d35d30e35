package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"publication/api/internal/blobstore"
	"publication/api/internal/document"
)

type suiteStore interface {
	Get(ctx context.Context, ref document.Ref) (*document.Document, error)
	Exists(ctx context.Context, ref document.Ref) (bool, error)
	Save(ctx context.Context, doc *document.Document, opts SaveOptions) error
	Delete(ctx context.Context, doc *document.Document) error
	Find(ctx context.Context, q Query) ([]document.Ref, error)
	Refs(ctx context.Context, wiki string) ([]document.Ref, error)
	UniqueRef(ctx context.Context, wiki, space, name string) (document.Ref, error)
	Subscribe(l Listener)
	LoadAttachments(ctx context.Context, doc *document.Document) error
}

type recordingListener struct {
	saved   []SaveEvent
	deleted []document.Ref
}

func (r *recordingListener) DocumentSaved(_ context.Context, ev SaveEvent) {
	r.saved = append(r.saved, ev)
}

func (r *recordingListener) DocumentDeleted(_ context.Context, ref document.Ref) {
	r.deleted = append(r.deleted, ref)
}

func newSQLiteStore(t *testing.T, blobs blobstore.Store) *SQLStore {
	t.Helper()
	ctx := context.Background()
	db, err := Open(ctx, DriverSQLite, filepath.Join(t.TempDir(), "store.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	migrations, err := Migrations(DriverSQLite)
	if err != nil {
		t.Fatalf("migrations: %v", err)
	}
	if err := ApplyMigrations(ctx, db, migrations); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return NewSQLStore(db, blobs)
}

func eachStore(t *testing.T, fn func(t *testing.T, s suiteStore, blobs *blobstore.Memory)) {
	t.Run("memory", func(t *testing.T) {
		blobs := blobstore.NewMemory()
		fn(t, NewMemory(blobs), blobs)
	})
	t.Run("sqlite", func(t *testing.T) {
		blobs := blobstore.NewMemory()
		fn(t, newSQLiteStore(t, blobs), blobs)
	})
}

func samplePage() *document.Document {
	doc := document.New(document.NewRef("xwiki", "Main", "Page"))
	doc.Title = "Page"
	doc.Content = "Hello\n"
	doc.Locale = "en"
	doc.Author = "XWiki.alice"
	doc.Creator = "XWiki.alice"
	wf := doc.NewObject(document.ClassWorkflow)
	wf.Set("target", "Main.Target")
	wf.SetInt("istarget", 0)
	return doc
}

func TestGetMissingReturnsNewDocument(t *testing.T) {
	eachStore(t, func(t *testing.T, s suiteStore, _ *blobstore.Memory) {
		ref := document.NewRef("xwiki", "Main", "Missing")
		doc, err := s.Get(context.Background(), ref)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if !doc.IsNew || doc.Ref != ref {
			t.Fatalf("expected new document for %s, got %+v", ref, doc)
		}
	})
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s suiteStore, blobs *blobstore.Memory) {
		ctx := context.Background()
		doc := samplePage()
		doc.Hidden = true
		rights := doc.NewObject(document.ClassRights)
		rights.Set("levels", "view")
		doc.NewObject(document.ClassRights).Set("levels", "edit")
		doc.RemoveObject(rights)

		att := &document.Attachment{Filename: "a.png", MimeType: "image/png", Author: "XWiki.alice"}
		att.SetContent([]byte{1, 2, 3})
		doc.AddAttachment(att)

		listener := &recordingListener{}
		s.Subscribe(listener)
		if err := s.Save(ctx, doc, SaveOptions{Message: "first", MinorEdit: true}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		if doc.IsNew || doc.Version != 1 {
			t.Fatalf("expected saved document at version 1, got new=%v version=%d", doc.IsNew, doc.Version)
		}
		if att.Dirty() || att.Key != document.ContentKey([]byte{1, 2, 3}) {
			t.Fatalf("attachment not persisted: %+v", att)
		}
		if blobs.Len() != 1 {
			t.Fatalf("expected one blob, got %d", blobs.Len())
		}
		if len(listener.saved) != 1 || listener.saved[0].Message != "first" || !listener.saved[0].MinorEdit {
			t.Fatalf("unexpected save events: %+v", listener.saved)
		}

		got, err := s.Get(ctx, doc.Ref)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.IsNew || got.Version != 1 || !got.Hidden {
			t.Fatalf("unexpected state: new=%v version=%d hidden=%v", got.IsNew, got.Version, got.Hidden)
		}
		if got.Title != "Page" || got.Content != "Hello\n" || got.Locale != "en" || got.Author != "XWiki.alice" {
			t.Fatalf("unexpected fields: %+v", got)
		}
		if got.ObjectAt(document.ClassRights, 0) != nil {
			t.Fatal("expected removed rights slot to stay empty")
		}
		if obj := got.ObjectAt(document.ClassRights, 1); obj == nil || obj.Get("levels") != "edit" {
			t.Fatalf("expected rights object at slot 1, got %+v", obj)
		}
		if got.Object(document.ClassWorkflow).Int("istarget", -1) != 0 {
			t.Fatal("expected workflow object to round trip")
		}

		loaded := got.Attachment("a.png")
		if loaded == nil || loaded.Loaded() || loaded.Size != 3 || loaded.MimeType != "image/png" {
			t.Fatalf("unexpected attachment: %+v", loaded)
		}
		if err := s.LoadAttachments(ctx, got); err != nil {
			t.Fatalf("LoadAttachments failed: %v", err)
		}
		if string(loaded.Content()) != string([]byte{1, 2, 3}) {
			t.Fatalf("unexpected attachment content %v", loaded.Content())
		}
	})
}

func TestSaveVersionConflict(t *testing.T) {
	eachStore(t, func(t *testing.T, s suiteStore, _ *blobstore.Memory) {
		ctx := context.Background()
		doc := samplePage()
		if err := s.Save(ctx, doc, SaveOptions{}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		first, _ := s.Get(ctx, doc.Ref)
		second, _ := s.Get(ctx, doc.Ref)
		first.Content = "first"
		if err := s.Save(ctx, first, SaveOptions{}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		second.Content = "second"
		if err := s.Save(ctx, second, SaveOptions{}); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected version conflict, got %v", err)
		}

		again := samplePage()
		if err := s.Save(ctx, again, SaveOptions{}); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected conflict for new document over existing, got %v", err)
		}
	})
}

func TestSaveConflictWritesNoBlobs(t *testing.T) {
	eachStore(t, func(t *testing.T, s suiteStore, blobs *blobstore.Memory) {
		ctx := context.Background()
		doc := samplePage()
		if err := s.Save(ctx, doc, SaveOptions{}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		stale, _ := s.Get(ctx, doc.Ref)
		fresh, _ := s.Get(ctx, doc.Ref)
		if err := s.Save(ctx, fresh, SaveOptions{}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}

		att := &document.Attachment{Filename: "a.png", MimeType: "image/png"}
		att.SetContent([]byte{4, 5, 6})
		stale.AddAttachment(att)
		if err := s.Save(ctx, stale, SaveOptions{}); !errors.Is(err, ErrVersionConflict) {
			t.Fatalf("expected version conflict, got %v", err)
		}
		if blobs.Len() != 0 {
			t.Errorf("expected no blobs after a rejected save, got %d", blobs.Len())
		}
		if !att.Dirty() {
			t.Error("expected attachment to stay dirty after a rejected save")
		}
	})
}

func TestDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, s suiteStore, _ *blobstore.Memory) {
		ctx := context.Background()
		doc := samplePage()
		if err := s.Save(ctx, doc, SaveOptions{}); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
		listener := &recordingListener{}
		s.Subscribe(listener)

		if err := s.Delete(ctx, doc); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		exists, err := s.Exists(ctx, doc.Ref)
		if err != nil || exists {
			t.Fatalf("expected deleted document, exists=%v err=%v", exists, err)
		}
		if len(listener.deleted) != 1 || listener.deleted[0] != doc.Ref {
			t.Fatalf("unexpected delete events: %+v", listener.deleted)
		}
		if err := s.Delete(ctx, doc); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestFind(t *testing.T) {
	eachStore(t, func(t *testing.T, s suiteStore, _ *blobstore.Memory) {
		ctx := context.Background()
		save := func(wiki, name, target, isTarget string) {
			doc := document.New(document.NewRef(wiki, "Drafts", name))
			wf := doc.NewObject(document.ClassWorkflow)
			wf.Set("target", target)
			wf.Set("istarget", isTarget)
			if err := s.Save(ctx, doc, SaveOptions{}); err != nil {
				t.Fatalf("Save %s failed: %v", name, err)
			}
		}
		save("xwiki", "B", "Main.Target", "0")
		save("xwiki", "A", "Main.Target", "0")
		save("xwiki", "C", "Main.Target", "1")
		save("xwiki", "D", "Main.Other", "0")
		save("other", "E", "Main.Target", "0")

		refs, err := s.Find(ctx, Query{
			Wiki:   "xwiki",
			Class:  document.ClassWorkflow,
			Equals: map[string]string{"target": "Main.Target", "istarget": "0"},
		})
		if err != nil {
			t.Fatalf("Find failed: %v", err)
		}
		if len(refs) != 2 || refs[0].Name != "A" || refs[1].Name != "B" {
			t.Fatalf("unexpected refs: %+v", refs)
		}

		all, err := s.Refs(ctx, "")
		if err != nil || len(all) != 5 {
			t.Fatalf("expected 5 refs, got %d (%v)", len(all), err)
		}
	})
}

func TestUniqueRef(t *testing.T) {
	eachStore(t, func(t *testing.T, s suiteStore, _ *blobstore.Memory) {
		ctx := context.Background()
		ref, err := s.UniqueRef(ctx, "xwiki", "Drafts", "Page")
		if err != nil || ref.Name != "Page" {
			t.Fatalf("expected free name, got %v (%v)", ref, err)
		}
		for _, name := range []string{"Page", "Page_0"} {
			if err := s.Save(ctx, document.New(document.NewRef("xwiki", "Drafts", name)), SaveOptions{}); err != nil {
				t.Fatalf("Save failed: %v", err)
			}
		}
		ref, err = s.UniqueRef(ctx, "xwiki", "Drafts", "Page")
		if err != nil || ref.Name != "Page_1" {
			t.Fatalf("expected Page_1, got %v (%v)", ref, err)
		}
	})
}

func TestMergePrimitiveReadsBlobs(t *testing.T) {
	ctx := context.Background()
	blobs := blobstore.NewMemory()
	s := NewMemory(blobs)

	base := samplePage()
	att := &document.Attachment{Filename: "a.txt"}
	att.SetContent([]byte("v1"))
	base.AddAttachment(att)
	if err := s.Save(ctx, base, SaveOptions{}); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	stored, _ := s.Get(ctx, base.Ref)
	current := s.Clone(stored)
	next := s.Duplicate(stored, stored.Ref)
	next.Attachment("a.txt").SetContent([]byte("v2"))

	result, err := s.Merge(ctx, stored, current, next)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if !result.Modified || len(result.Errors()) != 0 {
		t.Fatalf("unexpected merge result: %+v", result)
	}
	if string(current.Attachment("a.txt").Content()) != "v2" {
		t.Fatal("expected attachment replaced")
	}
	if len(s.ContentDiff(stored, current)) != 0 || len(s.MetadataDiff(stored, current)) != 0 || len(s.ObjectDiff(stored, current)) != 0 {
		t.Fatal("expected no content, metadata or object diff")
	}
}
