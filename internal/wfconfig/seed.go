package wfconfig

import (
	"context"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"publication/api/internal/document"
	"publication/api/internal/store"
)

// File is the layout of a workflow seed file:
//
//	workflows:
//	  - ref: Workflows.Default
//	    defaultDraftSpace: Drafts
//	    contributors: [XWiki.Contributors]
//	    moderators: [XWiki.Moderators]
//	    validators: [XWiki.Validators]
type File struct {
	Workflows []Entry `yaml:"workflows"`
}

type Entry struct {
	Ref               string   `yaml:"ref"`
	DefaultDraftSpace string   `yaml:"defaultDraftSpace"`
	Contributors      []string `yaml:"contributors"`
	Moderators        []string `yaml:"moderators"`
	Validators        []string `yaml:"validators"`
}

func ParseFile(r io.Reader) (File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if err == io.EOF {
			return File{}, nil
		}
		return File{}, fmt.Errorf("decode workflow file: %w", err)
	}
	for i, entry := range f.Workflows {
		if entry.Ref == "" {
			return File{}, fmt.Errorf("workflow %d: ref is required", i)
		}
	}
	return f, nil
}

func LoadFile(path string) (File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return File{}, fmt.Errorf("open workflow file: %w", err)
	}
	defer fh.Close()
	return ParseFile(fh)
}

type seedStore interface {
	Get(ctx context.Context, ref document.Ref) (*document.Document, error)
	Save(ctx context.Context, doc *document.Document, opts store.SaveOptions) error
}

// Seed writes every workflow of f into its configuration document in wiki.
// Documents that already hold the same values are left alone. It returns
// the references it saved.
func Seed(ctx context.Context, s seedStore, wiki, actor string, f File) ([]document.Ref, error) {
	var saved []document.Ref
	for _, entry := range f.Workflows {
		ref := document.ParseRef(entry.Ref, document.Ref{Wiki: wiki})
		doc, err := s.Get(ctx, ref)
		if err != nil {
			return saved, fmt.Errorf("load workflow config %s: %w", ref, err)
		}
		changed := Write(doc, Config{
			DefaultDraftSpace: entry.DefaultDraftSpace,
			Contributors:      document.JoinList(entry.Contributors),
			Moderators:        document.JoinList(entry.Moderators),
			Validators:        document.JoinList(entry.Validators),
		})
		if !changed && !doc.IsNew {
			continue
		}
		if doc.IsNew {
			doc.Creator = actor
			doc.Hidden = true
		}
		doc.Author = actor
		if err := s.Save(ctx, doc, store.SaveOptions{Message: "Updated workflow configuration", MinorEdit: true}); err != nil {
			return saved, fmt.Errorf("save workflow config %s: %w", ref, err)
		}
		saved = append(saved, ref)
	}
	return saved, nil
}
