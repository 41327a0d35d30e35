package document

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Attachment is a named binary attached to a document. Content is lazily
// loaded: Key locates the persisted bytes, and the in-memory copy is only
// held between Load and Release.
type Attachment struct {
	Filename string
	MimeType string
	Size     int64
	Author   string
	Date     time.Time
	Key      string

	content []byte
	loaded  bool
	dirty   bool
}

// Loaded reports whether the content bytes are held in memory.
func (a *Attachment) Loaded() bool {
	return a.loaded
}

// Dirty reports whether the in-memory content has not been persisted yet.
func (a *Attachment) Dirty() bool {
	return a.dirty
}

func (a *Attachment) Content() []byte {
	return a.content
}

// SetContent replaces the bytes and marks them for persistence.
func (a *Attachment) SetContent(content []byte) {
	a.content = content
	a.loaded = true
	a.dirty = true
	a.Size = int64(len(content))
}

// Hydrate sets bytes read back from storage without marking them dirty.
func (a *Attachment) Hydrate(content []byte) {
	a.content = content
	a.loaded = true
}

// MarkPersisted records the storage key once the bytes have been written.
func (a *Attachment) MarkPersisted(key string) {
	a.Key = key
	a.dirty = false
}

// Release drops the in-memory bytes. Bytes that were never persisted are kept
// since they could not be loaded again.
func (a *Attachment) Release() {
	if a.dirty || a.Key == "" {
		return
	}
	a.content = nil
	a.loaded = false
}

func (a *Attachment) Clone() *Attachment {
	if a == nil {
		return nil
	}
	out := *a
	if a.content != nil {
		out.content = append([]byte(nil), a.content...)
	}
	return &out
}

// ContentKey is the content-addressed storage key for bytes.
func ContentKey(content []byte) string {
	sum := sha256.Sum256(content)
	return "sha256/" + hex.EncodeToString(sum[:])
}
