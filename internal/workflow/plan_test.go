package workflow

import (
	"testing"

	"publication/api/internal/wfrecord"
)

func TestPlan(t *testing.T) {
	draft := func(s wfrecord.Status) Snapshot { return Snapshot{HasRecord: true, Status: s} }
	target := func(s wfrecord.Status) Snapshot { return Snapshot{HasRecord: true, Status: s, IsTarget: true} }

	tests := []struct {
		name   string
		op     Op
		from   Snapshot
		reason Reason
		to     Snapshot
	}{
		{name: "start fresh", op: OpStart, from: Snapshot{}, to: Snapshot{HasRecord: true, Status: wfrecord.StatusDraft, Hidden: true}},
		{name: "start twice", op: OpStart, from: draft(wfrecord.StatusDraft), reason: ReasonAlreadyInWorkflow},
		{name: "start as target keeps visibility", op: OpStartAsTarget, from: Snapshot{}, to: target(wfrecord.StatusPublished)},
		{name: "moderation from draft", op: OpSubmitForModeration, from: draft(wfrecord.StatusDraft), to: draft(wfrecord.StatusModerating)},
		{name: "moderation from valid", op: OpSubmitForModeration, from: draft(wfrecord.StatusValid), reason: ReasonWrongStatus},
		{name: "moderation without record", op: OpSubmitForModeration, from: Snapshot{}, reason: ReasonNoWorkflow},
		{name: "refuse moderation hides", op: OpRefuseModeration, from: draft(wfrecord.StatusModerating), to: Snapshot{HasRecord: true, Status: wfrecord.StatusDraft, Hidden: true}},
		{name: "validation from draft", op: OpSubmitForValidation, from: draft(wfrecord.StatusDraft), to: draft(wfrecord.StatusValidating)},
		{name: "validation from moderating", op: OpSubmitForValidation, from: draft(wfrecord.StatusModerating), to: draft(wfrecord.StatusValidating)},
		{name: "validate", op: OpValidate, from: draft(wfrecord.StatusValidating), to: draft(wfrecord.StatusValid)},
		{name: "validate on target", op: OpValidate, from: target(wfrecord.StatusValidating), reason: ReasonWrongTargetFlag},
		{name: "publish valid", op: OpPublish, from: draft(wfrecord.StatusValid), to: draft(wfrecord.StatusPublished)},
		{name: "publish draft", op: OpPublish, from: draft(wfrecord.StatusDraft), reason: ReasonWrongStatus},
		{name: "publish target", op: OpPublish, from: target(wfrecord.StatusValid), reason: ReasonWrongTargetFlag},
		{name: "edit published draft", op: OpEditDraft, from: draft(wfrecord.StatusPublished), to: Snapshot{HasRecord: true, Status: wfrecord.StatusDraft, Hidden: true}},
		{name: "edit published target", op: OpEditDraft, from: target(wfrecord.StatusPublished), reason: ReasonWrongTargetFlag},
		{name: "archive", op: OpArchive, from: target(wfrecord.StatusPublished), to: Snapshot{HasRecord: true, Status: wfrecord.StatusArchived, IsTarget: true, Hidden: true}},
		{name: "archive draft", op: OpArchive, from: draft(wfrecord.StatusPublished), reason: ReasonWrongTargetFlag},
		{name: "publish from archive", op: OpPublishFromArchive, from: Snapshot{HasRecord: true, Status: wfrecord.StatusArchived, IsTarget: true, Hidden: true}, to: target(wfrecord.StatusPublished)},
		{name: "unpublish archived", op: OpUnpublish, from: target(wfrecord.StatusArchived), to: Snapshot{HasRecord: true, Status: wfrecord.StatusDraft, Hidden: true}},
		{name: "unpublish draft", op: OpUnpublish, from: draft(wfrecord.StatusPublished), reason: ReasonWrongTargetFlag},
		{name: "create draft keeps target", op: OpCreateDraft, from: target(wfrecord.StatusPublished), to: target(wfrecord.StatusPublished)},
		{name: "unknown status", op: OpValidate, from: draft("pending"), reason: ReasonWrongStatus},
		{name: "unknown op", op: Op("rename"), from: draft(wfrecord.StatusDraft), reason: ReasonUnknownOperation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, reason := Plan(tt.op, tt.from)
			if reason != tt.reason {
				t.Fatalf("expected reason %q, got %q", tt.reason, reason)
			}
			if reason != "" {
				return
			}
			if tr.To != tt.to {
				t.Errorf("expected %+v, got %+v", tt.to, tr.To)
			}
			if tr.From != tt.from {
				t.Errorf("expected from %+v, got %+v", tt.from, tr.From)
			}
			if tr.To.HasRecord && !tr.To.Status.Valid() {
				t.Errorf("transition to invalid status %q", tr.To.Status)
			}
		})
	}
}

func TestPlanEffects(t *testing.T) {
	tests := []struct {
		op     Op
		from   Snapshot
		effect Effect
	}{
		{OpStart, Snapshot{}, EffectDraftRights},
		{OpSubmitForModeration, Snapshot{HasRecord: true, Status: wfrecord.StatusDraft}, EffectModeratingRights},
		{OpSubmitForValidation, Snapshot{HasRecord: true, Status: wfrecord.StatusDraft}, EffectValidatingRights},
		{OpPublish, Snapshot{HasRecord: true, Status: wfrecord.StatusValid}, EffectCopyToTarget},
		{OpUnpublish, Snapshot{HasRecord: true, Status: wfrecord.StatusPublished, IsTarget: true}, EffectDeleteTarget},
	}
	for _, tt := range tests {
		tr, reason := Plan(tt.op, tt.from)
		if reason != "" {
			t.Fatalf("%s: unexpected decline %q", tt.op, reason)
		}
		if !tr.Has(tt.effect) {
			t.Errorf("%s: expected effect %s in %v", tt.op, tt.effect, tr.Effects)
		}
	}

	tr, _ := Plan(OpValidate, Snapshot{HasRecord: true, Status: wfrecord.StatusValidating})
	for _, e := range []Effect{EffectDraftRights, EffectModeratingRights, EffectValidatingRights} {
		if tr.Has(e) {
			t.Errorf("validate should leave rights unchanged, has %s", e)
		}
	}
}

func TestPlanDoesNotShareEffects(t *testing.T) {
	first, _ := Plan(OpStart, Snapshot{})
	first.Effects[0] = EffectDeleteTarget
	second, _ := Plan(OpStart, Snapshot{})
	if second.Effects[0] != EffectDraftRights {
		t.Fatalf("plan effects leaked between calls: %v", second.Effects)
	}
}
