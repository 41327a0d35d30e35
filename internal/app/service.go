package app

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"publication/api/internal/document"
	"publication/api/internal/lock"
	"publication/api/internal/workflow"
)

type machine interface {
	Start(ctx context.Context, actor string, ref document.Ref, configRef string, target document.Ref) (workflow.Result, error)
	StartAsTarget(ctx context.Context, actor string, ref document.Ref, configRef string) (workflow.Result, error)
	SubmitForModeration(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error)
	RefuseModeration(ctx context.Context, actor string, ref document.Ref, reason string) (workflow.Result, error)
	SubmitForValidation(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error)
	RefuseValidation(ctx context.Context, actor string, ref document.Ref, reason string) (workflow.Result, error)
	Validate(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error)
	EditDraft(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error)
	Archive(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error)
	PublishFromArchive(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error)
	Publish(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error)
	Unpublish(ctx context.Context, actor string, ref document.Ref, forceToDraft bool) (workflow.Result, error)
	Unarchive(ctx context.Context, actor string, ref document.Ref, forceToDraft bool) (workflow.Result, error)
	CreateDraft(ctx context.Context, actor string, targetRef document.Ref) (workflow.Result, error)
}

type documentGetter interface {
	Get(ctx context.Context, ref document.Ref) (*document.Document, error)
}

type targetFinder interface {
	FindTargetForDraft(draft *document.Document) (document.Ref, bool)
}

// Service runs workflow operations. Operations that claim, copy onto or
// remove a target hold that target's lock for their whole duration, so two
// drafts can never publish to the same target at once.
type Service struct {
	machine  machine
	locks    lock.Locker
	store    documentGetter
	registry targetFinder
	log      zerolog.Logger
}

func NewService(m machine, locks lock.Locker, store documentGetter, registry targetFinder, log zerolog.Logger) *Service {
	if locks == nil {
		locks = lock.NewLocal()
	}
	return &Service{machine: m, locks: locks, store: store, registry: registry, log: log}
}

func targetKey(ref document.Ref) string {
	return "target:" + ref.String()
}

func (s *Service) withTarget(ctx context.Context, target document.Ref, fn func() (workflow.Result, error)) (workflow.Result, error) {
	unlock, err := s.locks.Lock(ctx, targetKey(target))
	if err != nil {
		return workflow.Result{}, fmt.Errorf("acquire target lock: %w", err)
	}
	defer unlock()
	return fn()
}

func (s *Service) Start(ctx context.Context, actor string, ref document.Ref, configRef string, target document.Ref) (workflow.Result, error) {
	return s.withTarget(ctx, target, func() (workflow.Result, error) {
		return s.machine.Start(ctx, actor, ref, configRef, target)
	})
}

func (s *Service) StartAsTarget(ctx context.Context, actor string, ref document.Ref, configRef string) (workflow.Result, error) {
	return s.withTarget(ctx, ref, func() (workflow.Result, error) {
		return s.machine.StartAsTarget(ctx, actor, ref, configRef)
	})
}

func (s *Service) SubmitForModeration(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error) {
	return s.machine.SubmitForModeration(ctx, actor, ref)
}

func (s *Service) RefuseModeration(ctx context.Context, actor string, ref document.Ref, reason string) (workflow.Result, error) {
	return s.machine.RefuseModeration(ctx, actor, ref, reason)
}

func (s *Service) SubmitForValidation(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error) {
	return s.machine.SubmitForValidation(ctx, actor, ref)
}

func (s *Service) RefuseValidation(ctx context.Context, actor string, ref document.Ref, reason string) (workflow.Result, error) {
	return s.machine.RefuseValidation(ctx, actor, ref, reason)
}

func (s *Service) Validate(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error) {
	return s.machine.Validate(ctx, actor, ref)
}

func (s *Service) EditDraft(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error) {
	return s.machine.EditDraft(ctx, actor, ref)
}

func (s *Service) Archive(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error) {
	return s.withTarget(ctx, ref, func() (workflow.Result, error) {
		return s.machine.Archive(ctx, actor, ref)
	})
}

func (s *Service) PublishFromArchive(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error) {
	return s.withTarget(ctx, ref, func() (workflow.Result, error) {
		return s.machine.PublishFromArchive(ctx, actor, ref)
	})
}

// Publish locks the target named by the draft's record. A draft without a
// target is handed to the machine unlocked; it declines it.
func (s *Service) Publish(ctx context.Context, actor string, ref document.Ref) (workflow.Result, error) {
	draft, err := s.store.Get(ctx, ref)
	if err != nil {
		return workflow.Result{}, fmt.Errorf("load draft: %w", err)
	}
	target, ok := s.registry.FindTargetForDraft(draft)
	if !ok {
		return s.machine.Publish(ctx, actor, ref)
	}
	return s.withTarget(ctx, target, func() (workflow.Result, error) {
		return s.machine.Publish(ctx, actor, ref)
	})
}

func (s *Service) Unpublish(ctx context.Context, actor string, ref document.Ref, forceToDraft bool) (workflow.Result, error) {
	return s.withTarget(ctx, ref, func() (workflow.Result, error) {
		return s.machine.Unpublish(ctx, actor, ref, forceToDraft)
	})
}

func (s *Service) Unarchive(ctx context.Context, actor string, ref document.Ref, forceToDraft bool) (workflow.Result, error) {
	return s.withTarget(ctx, ref, func() (workflow.Result, error) {
		return s.machine.Unarchive(ctx, actor, ref, forceToDraft)
	})
}

func (s *Service) CreateDraft(ctx context.Context, actor string, targetRef document.Ref) (workflow.Result, error) {
	return s.withTarget(ctx, targetRef, func() (workflow.Result, error) {
		return s.machine.CreateDraft(ctx, actor, targetRef)
	})
}
