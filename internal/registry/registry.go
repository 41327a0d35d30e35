// Package registry pairs drafts with the targets they publish to.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"publication/api/internal/document"
	"publication/api/internal/store"
	"publication/api/internal/wfrecord"
)

type finder interface {
	Find(ctx context.Context, q store.Query) ([]document.Ref, error)
}

// AmbiguousDraftError means more than one draft claims the same target.
type AmbiguousDraftError struct {
	Target document.Ref
	Drafts []document.Ref
}

func (e *AmbiguousDraftError) Error() string {
	names := make([]string, 0, len(e.Drafts))
	for _, d := range e.Drafts {
		names = append(names, d.String())
	}
	return fmt.Sprintf("target %s has %d drafts: %s", e.Target, len(e.Drafts), strings.Join(names, ", "))
}

type Registry struct {
	store finder
}

func New(store finder) *Registry {
	return &Registry{store: store}
}

// FindDraftForTarget looks in wiki for the draft whose record points at
// target. An empty wiki means the target's own wiki. When several drafts
// match, the first one is returned together with an *AmbiguousDraftError.
func (r *Registry) FindDraftForTarget(ctx context.Context, target document.Ref, wiki string) (document.Ref, bool, error) {
	if wiki == "" {
		wiki = target.Wiki
	}
	refs, err := r.draftsIn(ctx, target, wiki, target.Compact(document.Ref{Wiki: wiki}))
	if err != nil {
		return document.Ref{}, false, err
	}
	return pick(target, refs)
}

// FindDraftAnywhere looks for the draft of target in every wiki. Drafts in
// the target's wiki store the local name, drafts elsewhere the full one.
func (r *Registry) FindDraftAnywhere(ctx context.Context, target document.Ref) (document.Ref, bool, error) {
	local, err := r.draftsIn(ctx, target, target.Wiki, target.Compact(target))
	if err != nil {
		return document.Ref{}, false, err
	}
	remote, err := r.draftsIn(ctx, target, "", target.String())
	if err != nil {
		return document.Ref{}, false, err
	}
	seen := make(map[string]bool, len(local)+len(remote))
	var refs []document.Ref
	for _, ref := range append(local, remote...) {
		if !seen[ref.String()] {
			seen[ref.String()] = true
			refs = append(refs, ref)
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].String() < refs[j].String() })
	return pick(target, refs)
}

func (r *Registry) draftsIn(ctx context.Context, target document.Ref, wiki, stored string) ([]document.Ref, error) {
	refs, err := r.store.Find(ctx, store.Query{
		Wiki:  wiki,
		Class: document.ClassWorkflow,
		Equals: map[string]string{
			wfrecord.FieldTarget:   stored,
			wfrecord.FieldIsTarget: "0",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("find draft for %s: %w", target, err)
	}
	return refs, nil
}

func pick(target document.Ref, refs []document.Ref) (document.Ref, bool, error) {
	switch len(refs) {
	case 0:
		return document.Ref{}, false, nil
	case 1:
		return refs[0], true, nil
	default:
		return refs[0], true, &AmbiguousDraftError{Target: target, Drafts: refs}
	}
}

// FindTargetForDraft reads the target out of the draft's own record.
func (r *Registry) FindTargetForDraft(draft *document.Document) (document.Ref, bool) {
	rec, ok := wfrecord.Of(draft)
	if !ok {
		return document.Ref{}, false
	}
	target := rec.Target()
	return target, !target.IsZero()
}
