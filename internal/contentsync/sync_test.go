package contentsync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"publication/api/internal/docdiff"
	"publication/api/internal/document"
	"publication/api/internal/store"
)

var (
	draftRef  = document.NewRef("xwiki", "Drafts", "Page")
	targetRef = document.NewRef("xwiki", "Main", "Page")
)

func draft() *document.Document {
	d := document.New(draftRef)
	d.Content = "Hello\n"
	d.Title = "Page"
	d.Locale = "fr"
	d.Author = "XWiki.alice"
	d.Creator = "XWiki.carol"
	wf := d.NewObject(document.ClassWorkflow)
	wf.Set("status", "valid")
	d.NewObject(document.ClassRights).Set("levels", "edit")
	d.NewObject("Blog.Tag").Set("name", "go")
	return d
}

func TestSynchronizeIntoNewDocument(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(nil)
	source := draft()
	att := &document.Attachment{Filename: "a.png"}
	att.SetContent([]byte{1, 2, 3})
	source.AddAttachment(att)
	require.NoError(t, s.Save(ctx, source, store.SaveOptions{}))

	source, err := s.Get(ctx, draftRef)
	require.NoError(t, err)
	dest, err := s.Get(ctx, targetRef)
	require.NoError(t, err)

	require.NoError(t, New(s).Synchronize(ctx, source, dest))

	assert.Equal(t, "Hello\n", dest.Content)
	assert.Equal(t, "Page", dest.Title)
	assert.Equal(t, "fr", dest.Locale)
	assert.Equal(t, "XWiki.alice", dest.Author)
	assert.Equal(t, "XWiki.carol", dest.Creator)
	assert.Equal(t, targetRef, dest.Ref)
	assert.Nil(t, dest.Object(document.ClassWorkflow))
	assert.Nil(t, dest.Object(document.ClassRights))
	assert.Equal(t, "go", dest.Object("Blog.Tag").Get("name"))

	copied := dest.Attachment("a.png")
	require.NotNil(t, copied)
	assert.Equal(t, []byte{1, 2, 3}, copied.Content())
	assert.False(t, source.Attachment("a.png").Loaded(), "source bytes should be released")
}

func TestSynchronizeKeepsDestinationOnlyData(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory(nil)

	dest := document.New(targetRef)
	dest.Content = "Hello\n"
	dest.Creator = "XWiki.original"
	wf := dest.NewObject(document.ClassWorkflow)
	wf.Set("status", "published")
	wf.SetInt("istarget", 1)
	dest.NewObject(document.ClassRights).Set("levels", "view")
	dest.NewObject(document.ClassComments).Set("comment", "nice")
	dest.NewObject("Blog.Tag").Set("name", "go")
	require.NoError(t, s.Save(ctx, dest, store.SaveOptions{}))
	dest, _ = s.Get(ctx, targetRef)
	before := dest.Clone()

	source := dest.Duplicate(draftRef)
	document.Strip(source)
	source.Content = "Hello\nMore\n"
	source.Author = "XWiki.bob"
	source.Creator = "XWiki.bob"
	source.Locale = "de"

	require.NoError(t, New(s).Synchronize(ctx, source, dest))

	assert.Equal(t, "Hello\nMore\n", dest.Content)
	assert.Equal(t, "XWiki.bob", dest.Author)
	assert.Equal(t, "XWiki.original", dest.Creator, "creator only copied onto new documents")
	assert.Equal(t, "de", dest.Locale)
	for _, class := range []string{document.ClassWorkflow, document.ClassRights, document.ClassComments} {
		assert.True(t, before.Object(class).Equal(dest.Object(class)), "%s should be untouched", class)
	}
	assert.Equal(t, "go", dest.Object("Blog.Tag").Get("name"))
}

type failingMerger struct {
	result docdiff.MergeResult
	err    error
	loadFn func(*document.Document) error
}

func (f failingMerger) LoadAttachments(_ context.Context, doc *document.Document) error {
	if f.loadFn != nil {
		return f.loadFn(doc)
	}
	return nil
}

func (f failingMerger) Merge(context.Context, *document.Document, *document.Document, *document.Document) (docdiff.MergeResult, error) {
	return f.result, f.err
}

func TestSynchronizeMergeErrors(t *testing.T) {
	merger := failingMerger{result: docdiff.MergeResult{Log: []docdiff.LogEntry{
		{Level: docdiff.LevelWarn, Message: "ignored"},
		{Level: docdiff.LevelError, Message: "first"},
		{Level: docdiff.LevelError, Message: "second"},
	}}}

	err := New(merger).Synchronize(context.Background(), draft(), document.New(targetRef))

	var mergeErr *MergeError
	require.ErrorAs(t, err, &mergeErr)
	assert.Equal(t, draftRef, mergeErr.Source)
	assert.Equal(t, targetRef, mergeErr.Destination)
	assert.Equal(t, []string{"first", "second"}, mergeErr.Messages)
	assert.Contains(t, err.Error(), "xwiki:Drafts.Page")
	assert.Contains(t, err.Error(), "first; second")
}

func TestSynchronizeAttachmentFailure(t *testing.T) {
	ioErr := errors.New("disk gone")
	merger := failingMerger{loadFn: func(*document.Document) error { return ioErr }}

	err := New(merger).Synchronize(context.Background(), draft(), document.New(targetRef))
	require.ErrorIs(t, err, ioErr)
}
