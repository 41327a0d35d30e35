// Package workflow moves documents through the publication workflow: drafts
// are started, reviewed and published onto their target, and targets are
// archived or taken back to draft.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"publication/api/internal/document"
	"publication/api/internal/messages"
	"publication/api/internal/registry"
	"publication/api/internal/rights"
	"publication/api/internal/store"
	"publication/api/internal/wfconfig"
	"publication/api/internal/wfrecord"
)

// ErrDraftNotUpdated is returned by Publish when the target was saved but
// the draft record could not be marked as published.
var ErrDraftNotUpdated = errors.New("target published but draft record not updated")

// CopyError wraps a failure to carry content from one document to another.
type CopyError struct {
	Source      document.Ref
	Destination document.Ref
	Err         error
}

func (e *CopyError) Error() string {
	return fmt.Sprintf("copy %s to %s: %v", e.Source, e.Destination, e.Err)
}

func (e *CopyError) Unwrap() error {
	return e.Err
}

// Result of an operation. A declined operation has a Reason and a zero Ref.
type Result struct {
	Ref    document.Ref
	Reason Reason
}

func (r Result) OK() bool {
	return r.Reason == ""
}

type documentStore interface {
	Get(ctx context.Context, ref document.Ref) (*document.Document, error)
	Save(ctx context.Context, doc *document.Document, opts store.SaveOptions) error
	Delete(ctx context.Context, doc *document.Document) error
	UniqueRef(ctx context.Context, wiki, space, name string) (document.Ref, error)
}

type draftFinder interface {
	FindDraftAnywhere(ctx context.Context, target document.Ref) (document.Ref, bool, error)
}

type synchronizer interface {
	Synchronize(ctx context.Context, source, destination *document.Document) error
}

type changeDetector interface {
	IsModified(ctx context.Context, from, to *document.Document) (bool, error)
}

type messageCatalog interface {
	Message(key, fallback string, params ...any) string
}

// Deps are the collaborators of a Machine. Messages may be nil, in which
// case every change message uses its English default.
type Deps struct {
	Store    documentStore
	Registry draftFinder
	Configs  wfconfig.Resolver
	Sync     synchronizer
	Detector changeDetector
	Messages messageCatalog
	Log      zerolog.Logger
}

type Machine struct {
	store    documentStore
	registry draftFinder
	configs  wfconfig.Resolver
	sync     synchronizer
	detector changeDetector
	messages messageCatalog
	log      zerolog.Logger
}

func New(d Deps) *Machine {
	msgs := d.Messages
	if msgs == nil {
		msgs = (*messages.Catalog)(nil)
	}
	return &Machine{
		store:    d.Store,
		registry: d.Registry,
		configs:  d.Configs,
		sync:     d.Sync,
		detector: d.Detector,
		messages: msgs,
		log:      d.Log,
	}
}

type saveMessage struct {
	key      string
	fallback string
	params   []any
	minor    bool
}

// IsWorkflowDocument reports whether doc carries a workflow record.
func IsWorkflowDocument(doc *document.Document) bool {
	_, ok := wfrecord.Of(doc)
	return ok
}

// SnapshotOf reads the workflow state of doc.
func SnapshotOf(doc *document.Document) Snapshot {
	rec, ok := wfrecord.Of(doc)
	if !ok {
		return Snapshot{Hidden: doc.Hidden}
	}
	return Snapshot{HasRecord: true, Status: rec.Status(), IsTarget: rec.IsTarget(), Hidden: doc.Hidden}
}

// IsModified reports whether from and to differ in editorial content.
func (m *Machine) IsModified(ctx context.Context, from, to *document.Document) (bool, error) {
	return m.detector.IsModified(ctx, from, to)
}

// Start puts ref into a new workflow as the draft of target.
func (m *Machine) Start(ctx context.Context, actor string, ref document.Ref, configRef string, target document.Ref) (Result, error) {
	doc, err := m.load(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	tr, reason := Plan(OpStart, SnapshotOf(doc))
	if reason != "" {
		return m.decline(OpStart, ref, reason), nil
	}
	if reason, err := m.checkUnclaimed(ctx, target); err != nil || reason != "" {
		return m.decline(OpStart, ref, reason), err
	}
	cfg, err := m.configs.Resolve(ctx, configRef, doc.Ref)
	if err != nil {
		return Result{}, err
	}
	if cfg == nil {
		return m.decline(OpStart, ref, ReasonNoConfig), nil
	}

	rec := wfrecord.Create(doc)
	rec.SetConfig(document.ParseRef(configRef, doc.Ref).Compact(doc.Ref))
	rec.SetTarget(target)
	m.apply(doc, rec, tr, cfg, actor)

	err = m.save(ctx, doc, saveMessage{
		key:      messages.KeyStart,
		fallback: "Started workflow %s on document %s",
		params:   []any{configRef, ref.String()},
		minor:    true,
	}, false)
	if err != nil {
		return Result{}, err
	}
	m.transitioned(tr, ref, actor)
	return Result{Ref: ref}, nil
}

// StartAsTarget puts an already public document into a workflow as its own
// target. Rights are left untouched.
func (m *Machine) StartAsTarget(ctx context.Context, actor string, ref document.Ref, configRef string) (Result, error) {
	doc, err := m.load(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	tr, reason := Plan(OpStartAsTarget, SnapshotOf(doc))
	if reason != "" {
		return m.decline(OpStartAsTarget, ref, reason), nil
	}
	if reason, err := m.checkUnclaimed(ctx, ref); err != nil || reason != "" {
		return m.decline(OpStartAsTarget, ref, reason), err
	}
	cfg, err := m.configs.Resolve(ctx, configRef, doc.Ref)
	if err != nil {
		return Result{}, err
	}
	if cfg == nil {
		return m.decline(OpStartAsTarget, ref, ReasonNoConfig), nil
	}

	rec := wfrecord.Create(doc)
	rec.SetConfig(document.ParseRef(configRef, doc.Ref).Compact(doc.Ref))
	rec.SetTarget(doc.Ref)
	m.apply(doc, rec, tr, cfg, actor)

	err = m.save(ctx, doc, saveMessage{
		key:      messages.KeyStartAsTarget,
		fallback: "Started workflow %s on document %s as target",
		params:   []any{configRef, ref.String()},
		minor:    true,
	}, false)
	if err != nil {
		return Result{}, err
	}
	m.transitioned(tr, ref, actor)
	return Result{Ref: ref}, nil
}

// SubmitForModeration hands a draft to the moderators. Without configured
// moderators the draft goes straight to validation.
func (m *Machine) SubmitForModeration(ctx context.Context, actor string, ref document.Ref) (Result, error) {
	doc, err := m.load(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	if _, reason := Plan(OpSubmitForModeration, SnapshotOf(doc)); reason != "" {
		return m.decline(OpSubmitForModeration, ref, reason), nil
	}
	cfg, err := m.recordConfig(ctx, doc)
	if err != nil {
		return Result{}, err
	}
	if cfg == nil {
		return m.decline(OpSubmitForModeration, ref, ReasonNoConfig), nil
	}
	if strings.TrimSpace(cfg.Moderators) == "" {
		return m.step(ctx, OpSubmitForValidation, actor, doc, cfg, validationMessage(ref))
	}
	return m.step(ctx, OpSubmitForModeration, actor, doc, cfg, saveMessage{
		key:      messages.KeySubmitForModeration,
		fallback: "Submitted document %s for moderation",
		params:   []any{ref.String()},
		minor:    true,
	})
}

// RefuseModeration sends a moderated document back to draft.
func (m *Machine) RefuseModeration(ctx context.Context, actor string, ref document.Ref, reason string) (Result, error) {
	return m.run(ctx, OpRefuseModeration, actor, ref, saveMessage{
		key:      messages.KeyRefuseModeration,
		fallback: "Refused moderation : %s",
		params:   []any{reason},
	})
}

// SubmitForValidation hands a draft or moderated document to the validators.
func (m *Machine) SubmitForValidation(ctx context.Context, actor string, ref document.Ref) (Result, error) {
	return m.run(ctx, OpSubmitForValidation, actor, ref, validationMessage(ref))
}

func validationMessage(ref document.Ref) saveMessage {
	return saveMessage{
		key:      messages.KeySubmitForValidation,
		fallback: "Submitted document %s for validation.",
		params:   []any{ref.String()},
		minor:    true,
	}
}

// RefuseValidation sends a document under validation back to draft.
func (m *Machine) RefuseValidation(ctx context.Context, actor string, ref document.Ref, reason string) (Result, error) {
	return m.run(ctx, OpRefuseValidation, actor, ref, saveMessage{
		key:      messages.KeyRefuseValidation,
		fallback: "Refused publication : %s",
		params:   []any{reason},
	})
}

// Validate marks a document under validation as ready to publish.
func (m *Machine) Validate(ctx context.Context, actor string, ref document.Ref) (Result, error) {
	return m.run(ctx, OpValidate, actor, ref, saveMessage{
		key:      messages.KeyValidate,
		fallback: "Marked document %s as valid.",
		params:   []any{ref.String()},
		minor:    true,
	})
}

// EditDraft takes a published draft back to draft so it can change again.
func (m *Machine) EditDraft(ctx context.Context, actor string, ref document.Ref) (Result, error) {
	return m.run(ctx, OpEditDraft, actor, ref, saveMessage{
		key:      messages.KeyBackToDraft,
		fallback: "Back to draft status to enable editing.",
		minor:    true,
	})
}

// Archive hides a published target.
func (m *Machine) Archive(ctx context.Context, actor string, ref document.Ref) (Result, error) {
	return m.run(ctx, OpArchive, actor, ref, saveMessage{
		key:      messages.KeyArchive,
		fallback: "Archived document.",
		minor:    true,
	})
}

// PublishFromArchive makes an archived target visible again.
func (m *Machine) PublishFromArchive(ctx context.Context, actor string, ref document.Ref) (Result, error) {
	return m.run(ctx, OpPublishFromArchive, actor, ref, saveMessage{
		key:      messages.KeyPublishFromArchive,
		fallback: "Published document from an archive.",
		minor:    true,
	})
}

// Publish copies the draft onto its target, creating the target when it
// does not exist, and marks both as published. The target is saved first;
// when the draft save then fails the target reference is returned with an
// error wrapping ErrDraftNotUpdated.
func (m *Machine) Publish(ctx context.Context, actor string, ref document.Ref) (Result, error) {
	doc, err := m.load(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	tr, reason := Plan(OpPublish, SnapshotOf(doc))
	if reason != "" {
		return m.decline(OpPublish, ref, reason), nil
	}
	rec, _ := wfrecord.Of(doc)
	targetRef := rec.Target()
	if targetRef.IsZero() {
		return m.decline(OpPublish, ref, ReasonNoTarget), nil
	}
	target, err := m.load(ctx, targetRef)
	if err != nil {
		return Result{}, err
	}

	if err := m.sync.Synchronize(ctx, doc, target); err != nil {
		return Result{}, &CopyError{Source: doc.Ref, Destination: targetRef, Err: err}
	}
	target.Hidden = false
	rights.TruncateFrom(target, 0)
	trec, ok := wfrecord.Of(target)
	if !ok {
		trec = wfrecord.Create(target)
	}
	trec.SetConfig(document.ParseRef(rec.Config(), doc.Ref).Compact(targetRef))
	trec.SetTarget(targetRef)
	trec.SetStatus(wfrecord.StatusPublished)
	trec.SetIsTarget(true)
	trec.SetStatusAuthor(actor)

	err = m.save(ctx, target, saveMessage{
		key:      messages.KeyPublishNew,
		fallback: "Published new version of the document.",
	}, true)
	if err != nil {
		return Result{}, err
	}

	m.apply(doc, rec, tr, nil, actor)
	err = m.save(ctx, doc, saveMessage{
		key:      messages.KeyPublishDraft,
		fallback: "Published this document to %s.",
		params:   []any{targetRef.String()},
	}, false)
	if err != nil {
		m.log.Warn().Err(err).Str("draft", ref.String()).Str("target", targetRef.String()).Msg("target published, draft record lags")
		return Result{Ref: targetRef}, fmt.Errorf("%w: %w", ErrDraftNotUpdated, err)
	}
	m.transitioned(tr, ref, actor)
	return Result{Ref: targetRef}, nil
}

// Unpublish takes a target back to draft and deletes it. An existing draft
// that mirrors the target is reverted to draft; any other existing draft is
// overwritten with the target content only when forceToDraft is set, and
// left as it is otherwise. Without a draft one is created from the target.
// The returned reference is the draft.
func (m *Machine) Unpublish(ctx context.Context, actor string, ref document.Ref, forceToDraft bool) (Result, error) {
	target, err := m.load(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	tr, reason := Plan(OpUnpublish, SnapshotOf(target))
	if reason != "" {
		return m.decline(OpUnpublish, ref, reason), nil
	}

	draftRef, found, err := m.registry.FindDraftAnywhere(ctx, ref)
	if err != nil {
		return Result{}, fmt.Errorf("unpublish %s: %w", ref, err)
	}
	if found {
		if err := m.revertDraft(ctx, actor, target, draftRef, forceToDraft); err != nil {
			return Result{}, err
		}
	} else {
		res, err := m.createDraft(ctx, actor, target)
		if err != nil {
			return Result{}, err
		}
		if !res.OK() {
			return m.decline(OpUnpublish, ref, ReasonDraftUnavailable), nil
		}
		draftRef = res.Ref
	}

	if err := m.store.Delete(ctx, target); err != nil {
		return Result{}, fmt.Errorf("delete target %s: %w", ref, err)
	}
	m.transitioned(tr, ref, actor)
	return Result{Ref: draftRef}, nil
}

// Unarchive is Unpublish.
func (m *Machine) Unarchive(ctx context.Context, actor string, ref document.Ref, forceToDraft bool) (Result, error) {
	return m.Unpublish(ctx, actor, ref, forceToDraft)
}

func (m *Machine) revertDraft(ctx context.Context, actor string, target *document.Document, draftRef document.Ref, force bool) error {
	draft, err := m.load(ctx, draftRef)
	if err != nil {
		return err
	}
	rec, ok := wfrecord.Of(draft)
	if !ok {
		return nil
	}
	switch {
	case rec.Status() == wfrecord.StatusPublished:
	case force:
		if err := m.sync.Synchronize(ctx, target, draft); err != nil {
			return &CopyError{Source: target.Ref, Destination: draftRef, Err: err}
		}
	default:
		return nil
	}

	cfg, err := m.recordConfig(ctx, draft)
	if err != nil {
		return err
	}
	m.apply(draft, rec, backToDraft(SnapshotOf(draft)), cfg, actor)
	return m.save(ctx, draft, saveMessage{
		key:      messages.KeyUnpublish,
		fallback: "Created draft from published document %s.",
		params:   []any{target.Ref.String()},
		minor:    true,
	}, false)
}

// backToDraft is the transition every revert to draft applies, whatever
// status the document had.
func backToDraft(from Snapshot) Transition {
	return Transition{
		Op:      OpEditDraft,
		From:    from,
		To:      Snapshot{HasRecord: true, Status: wfrecord.StatusDraft, Hidden: true},
		Effects: []Effect{EffectDraftRights, EffectSave},
	}
}

// CreateDraft creates a draft for a published or archived target in the
// draft space of its configuration.
func (m *Machine) CreateDraft(ctx context.Context, actor string, targetRef document.Ref) (Result, error) {
	target, err := m.load(ctx, targetRef)
	if err != nil {
		return Result{}, err
	}
	return m.createDraft(ctx, actor, target)
}

func (m *Machine) createDraft(ctx context.Context, actor string, target *document.Document) (Result, error) {
	if _, reason := Plan(OpCreateDraft, SnapshotOf(target)); reason != "" {
		return m.decline(OpCreateDraft, target.Ref, reason), nil
	}
	if reason, err := m.checkUnclaimed(ctx, target.Ref); err != nil || reason != "" {
		return m.decline(OpCreateDraft, target.Ref, reason), err
	}
	cfg, err := m.recordConfig(ctx, target)
	if err != nil {
		return Result{}, err
	}
	if cfg == nil {
		return m.decline(OpCreateDraft, target.Ref, ReasonNoConfig), nil
	}
	space := cfg.DraftSpace()
	if space == "" {
		return m.decline(OpCreateDraft, target.Ref, ReasonNoDraftSpace), nil
	}

	draftRef, err := m.store.UniqueRef(ctx, target.Ref.Wiki, space, target.Ref.Name)
	if err != nil {
		return Result{}, fmt.Errorf("allocate draft for %s: %w", target.Ref, err)
	}
	draft, err := m.load(ctx, draftRef)
	if err != nil {
		return Result{}, err
	}
	if err := m.sync.Synchronize(ctx, target, draft); err != nil {
		return Result{}, &CopyError{Source: target.Ref, Destination: draftRef, Err: err}
	}

	trec, _ := wfrecord.Of(target)
	rec := wfrecord.Create(draft)
	rec.SetConfig(document.ParseRef(trec.Config(), target.Ref).Compact(draftRef))
	rec.SetTarget(target.Ref)
	tr := backToDraft(SnapshotOf(draft))
	tr.Op = OpCreateDraft
	m.apply(draft, rec, tr, cfg, actor)
	draft.Creator = actor

	err = m.save(ctx, draft, saveMessage{
		key:      messages.KeyCreateDraft,
		fallback: "Created draft for %s.",
		params:   []any{target.Ref.String()},
	}, false)
	if err != nil {
		return Result{}, err
	}
	m.transitioned(tr, draftRef, actor)
	return Result{Ref: draftRef}, nil
}

// SetupDraftAccess hides doc and gives every participant of its workflow
// edit rights. Rights are left alone when the configuration is missing. It
// does not save.
func (m *Machine) SetupDraftAccess(ctx context.Context, doc *document.Document) error {
	doc.Hidden = true
	cfg, err := m.recordConfig(ctx, doc)
	if err != nil {
		return err
	}
	if cfg != nil {
		rights.ApplyDraft(doc, cfg.Roles())
	}
	return nil
}

func (m *Machine) run(ctx context.Context, op Op, actor string, ref document.Ref, msg saveMessage) (Result, error) {
	doc, err := m.load(ctx, ref)
	if err != nil {
		return Result{}, err
	}
	if _, reason := Plan(op, SnapshotOf(doc)); reason != "" {
		return m.decline(op, ref, reason), nil
	}
	cfg, err := m.recordConfig(ctx, doc)
	if err != nil {
		return Result{}, err
	}
	return m.step(ctx, op, actor, doc, cfg, msg)
}

// step performs a single-document transition on doc.
func (m *Machine) step(ctx context.Context, op Op, actor string, doc *document.Document, cfg *wfconfig.Config, msg saveMessage) (Result, error) {
	tr, reason := Plan(op, SnapshotOf(doc))
	if reason != "" {
		return m.decline(op, doc.Ref, reason), nil
	}
	if cfg == nil && (tr.Has(EffectModeratingRights) || tr.Has(EffectValidatingRights)) {
		return m.decline(op, doc.Ref, ReasonNoConfig), nil
	}
	rec, _ := wfrecord.Of(doc)
	m.apply(doc, rec, tr, cfg, actor)
	if err := m.save(ctx, doc, msg, false); err != nil {
		return Result{}, err
	}
	m.transitioned(tr, doc.Ref, actor)
	return Result{Ref: doc.Ref}, nil
}

// apply writes the planned state into the record and document and provisions
// rights. Draft rights need a configuration; without one only the
// visibility changes.
func (m *Machine) apply(doc *document.Document, rec wfrecord.Record, tr Transition, cfg *wfconfig.Config, actor string) {
	rec.SetStatus(tr.To.Status)
	rec.SetIsTarget(tr.To.IsTarget)
	rec.SetStatusAuthor(actor)
	doc.Hidden = tr.To.Hidden
	if cfg == nil {
		return
	}
	switch {
	case tr.Has(EffectDraftRights):
		rights.ApplyDraft(doc, cfg.Roles())
	case tr.Has(EffectModeratingRights):
		rights.ApplyModerating(doc, cfg.Roles())
	case tr.Has(EffectValidatingRights):
		rights.ApplyValidating(doc, cfg.Roles())
	}
}

// checkUnclaimed declines when target already has a draft in any wiki.
// Several drafts count as claimed.
func (m *Machine) checkUnclaimed(ctx context.Context, target document.Ref) (Reason, error) {
	_, found, err := m.registry.FindDraftAnywhere(ctx, target)
	var ambiguous *registry.AmbiguousDraftError
	switch {
	case errors.As(err, &ambiguous):
		m.log.Warn().Str("target", target.String()).Int("drafts", len(ambiguous.Drafts)).Msg("target has several drafts")
		return ReasonTargetClaimed, nil
	case err != nil:
		return "", err
	case found:
		return ReasonTargetClaimed, nil
	}
	return "", nil
}

func (m *Machine) recordConfig(ctx context.Context, doc *document.Document) (*wfconfig.Config, error) {
	rec, ok := wfrecord.Of(doc)
	if !ok || rec.Config() == "" {
		return nil, nil
	}
	return m.configs.Resolve(ctx, rec.Config(), doc.Ref)
}

func (m *Machine) load(ctx context.Context, ref document.Ref) (*document.Document, error) {
	doc, err := m.store.Get(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", ref, err)
	}
	return doc, nil
}

func (m *Machine) save(ctx context.Context, doc *document.Document, msg saveMessage, publishing bool) error {
	err := m.store.Save(ctx, doc, store.SaveOptions{
		Message:    m.messages.Message(msg.key, msg.fallback, msg.params...),
		MinorEdit:  msg.minor,
		Publishing: publishing,
	})
	if err != nil {
		return fmt.Errorf("save document %s: %w", doc.Ref, err)
	}
	return nil
}

func (m *Machine) decline(op Op, ref document.Ref, reason Reason) Result {
	if reason == "" {
		return Result{}
	}
	m.log.Debug().Str("op", string(op)).Str("document", ref.String()).Str("reason", string(reason)).Msg("workflow operation declined")
	return Result{Reason: reason}
}

func (m *Machine) transitioned(tr Transition, ref document.Ref, actor string) {
	m.log.Info().
		Str("op", string(tr.Op)).
		Str("document", ref.String()).
		Str("from", string(tr.From.Status)).
		Str("to", string(tr.To.Status)).
		Str("actor", actor).
		Msg("workflow transition")
}
