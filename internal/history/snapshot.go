package history

import (
	"encoding/json"
	"fmt"

	"publication/api/internal/document"
)

// Snapshot is the archived form of a document. Attachments are recorded by
// their content key only.
type Snapshot struct {
	Ref         string               `json:"ref"`
	Locale      string               `json:"locale,omitempty"`
	Title       string               `json:"title"`
	Parent      string               `json:"parent,omitempty"`
	Syntax      string               `json:"syntax,omitempty"`
	Content     string               `json:"content"`
	Creator     string               `json:"creator,omitempty"`
	Author      string               `json:"author,omitempty"`
	Hidden      bool                 `json:"hidden"`
	Version     int                  `json:"version"`
	Objects     []ObjectSnapshot     `json:"objects,omitempty"`
	Attachments []AttachmentSnapshot `json:"attachments,omitempty"`
}

type ObjectSnapshot struct {
	Class      string            `json:"class"`
	Number     int               `json:"number"`
	Properties map[string]string `json:"properties"`
}

type AttachmentSnapshot struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size"`
	Key      string `json:"key"`
}

func SnapshotOf(doc *document.Document) Snapshot {
	s := Snapshot{
		Ref:     doc.Ref.String(),
		Locale:  doc.Locale,
		Title:   doc.Title,
		Parent:  doc.Parent,
		Syntax:  doc.Syntax,
		Content: doc.Content,
		Creator: doc.Creator,
		Author:  doc.Author,
		Hidden:  doc.Hidden,
		Version: doc.Version,
	}
	for _, class := range doc.Classes() {
		for _, obj := range doc.Objects(class) {
			if obj == nil {
				continue
			}
			s.Objects = append(s.Objects, ObjectSnapshot{Class: class, Number: obj.Number, Properties: obj.Properties()})
		}
	}
	for _, att := range doc.Attachments() {
		s.Attachments = append(s.Attachments, AttachmentSnapshot{
			Filename: att.Filename,
			MimeType: att.MimeType,
			Size:     att.Size,
			Key:      att.Key,
		})
	}
	return s
}

// Encode renders the snapshot of doc as indented JSON.
func Encode(doc *document.Document) ([]byte, error) {
	payload, err := json.MarshalIndent(SnapshotOf(doc), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return append(payload, '\n'), nil
}

func Decode(payload []byte) (Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(payload, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return s, nil
}
