// Package wfconfig resolves the workflow configuration documents that name
// the draft space and the role memberships of a publication workflow.
package wfconfig

import (
	"context"
	"fmt"
	"strings"

	"publication/api/internal/document"
	"publication/api/internal/rights"
)

// Property names of the configuration object.
const (
	FieldDefaultDraftSpace = "defaultDraftSpace"
	FieldContributors      = "contributor"
	FieldModerators        = "moderator"
	FieldValidators        = "validator"
)

// Config is one workflow configuration. Role memberships are serialized
// principal lists, consumed as they are stored.
type Config struct {
	Ref               document.Ref `json:"ref"`
	DefaultDraftSpace string       `json:"defaultDraftSpace"`
	Contributors      string       `json:"contributors"`
	Moderators        string       `json:"moderators"`
	Validators        string       `json:"validators"`
}

func (c *Config) Roles() rights.Roles {
	return rights.Roles{
		Contributors: c.Contributors,
		Moderators:   c.Moderators,
		Validators:   c.Validators,
	}
}

// DraftSpace is the configured draft space with surrounding blanks removed.
func (c *Config) DraftSpace() string {
	return strings.TrimSpace(c.DefaultDraftSpace)
}

// FromDocument reads the configuration object of doc.
func FromDocument(doc *document.Document) (*Config, bool) {
	obj := doc.Object(document.ClassWorkflowConfig)
	if obj == nil {
		return nil, false
	}
	return &Config{
		Ref:               doc.Ref,
		DefaultDraftSpace: obj.Get(FieldDefaultDraftSpace),
		Contributors:      obj.Get(FieldContributors),
		Moderators:        obj.Get(FieldModerators),
		Validators:        obj.Get(FieldValidators),
	}, true
}

// Write stores cfg in the configuration object of doc, creating it when
// needed. It reports whether anything changed.
func Write(doc *document.Document, cfg Config) bool {
	obj := doc.Object(document.ClassWorkflowConfig)
	if obj == nil {
		obj = doc.NewObject(document.ClassWorkflowConfig)
	}
	changed := false
	for name, value := range map[string]string{
		FieldDefaultDraftSpace: cfg.DefaultDraftSpace,
		FieldContributors:      cfg.Contributors,
		FieldModerators:        cfg.Moderators,
		FieldValidators:        cfg.Validators,
	} {
		if obj.Has(name) && obj.Get(name) == value {
			continue
		}
		obj.Set(name, value)
		changed = true
	}
	return changed
}

// Resolver finds a configuration by its serialized reference. A missing
// configuration is a nil Config and a nil error.
type Resolver interface {
	Resolve(ctx context.Context, ref string, relativeTo document.Ref) (*Config, error)
}

type getter interface {
	Get(ctx context.Context, ref document.Ref) (*document.Document, error)
}

// StoreResolver reads configurations straight from the document store.
type StoreResolver struct {
	store getter
}

func NewStoreResolver(store getter) *StoreResolver {
	return &StoreResolver{store: store}
}

func (r *StoreResolver) Resolve(ctx context.Context, ref string, relativeTo document.Ref) (*Config, error) {
	parsed := document.ParseRef(ref, relativeTo)
	if parsed.IsZero() {
		return nil, nil
	}
	doc, err := r.store.Get(ctx, parsed)
	if err != nil {
		return nil, fmt.Errorf("load workflow config %s: %w", parsed, err)
	}
	if doc.IsNew {
		return nil, nil
	}
	cfg, ok := FromDocument(doc)
	if !ok {
		return nil, nil
	}
	return cfg, nil
}
