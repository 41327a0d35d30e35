package workflow

import (
	"publication/api/internal/wfrecord"
)

type Op string

const (
	OpStart               Op = "start"
	OpStartAsTarget       Op = "startAsTarget"
	OpSubmitForModeration Op = "submitForModeration"
	OpRefuseModeration    Op = "refuseModeration"
	OpSubmitForValidation Op = "submitForValidation"
	OpRefuseValidation    Op = "refuseValidation"
	OpValidate            Op = "validate"
	OpPublish             Op = "publish"
	OpEditDraft           Op = "editDraft"
	OpArchive             Op = "archive"
	OpPublishFromArchive  Op = "publishFromArchive"
	OpUnpublish           Op = "unpublish"
	OpCreateDraft         Op = "createDraft"
)

// Reason explains a declined operation.
type Reason string

const (
	ReasonUnknownOperation  Reason = "unknown operation"
	ReasonNoWorkflow        Reason = "document has no workflow record"
	ReasonAlreadyInWorkflow Reason = "document already has a workflow record"
	ReasonWrongStatus       Reason = "workflow status does not allow the operation"
	ReasonWrongTargetFlag   Reason = "operation does not apply to this side of the draft/target pair"
	ReasonTargetClaimed     Reason = "target already has a draft"
	ReasonNoConfig          Reason = "workflow configuration not found"
	ReasonNoDraftSpace      Reason = "workflow configuration has no default draft space"
	ReasonNoTarget          Reason = "workflow record has no target"
	ReasonDraftUnavailable  Reason = "no draft could be created for the target"
)

// Snapshot is the workflow state of one document.
type Snapshot struct {
	HasRecord bool
	Status    wfrecord.Status
	IsTarget  bool
	Hidden    bool
}

// Effect is a side effect an operation performs besides updating the record.
type Effect string

const (
	EffectDraftRights      Effect = "rights:draft"
	EffectModeratingRights Effect = "rights:moderating"
	EffectValidatingRights Effect = "rights:validating"
	EffectCopyToTarget     Effect = "copy:draft-to-target"
	EffectSecureDraft      Effect = "draft:secure"
	EffectDeleteTarget     Effect = "delete:target"
	EffectCreateDraft      Effect = "draft:create"
	EffectSave             Effect = "save"
)

// Transition is the planned outcome of an operation. For publish To is the
// state of the draft; for unpublish it is the state the surviving draft ends
// in; for createDraft the target itself does not change.
type Transition struct {
	Op      Op
	From    Snapshot
	To      Snapshot
	Effects []Effect
}

func (t Transition) Has(effect Effect) bool {
	for _, e := range t.Effects {
		if e == effect {
			return true
		}
	}
	return false
}

type visibility int

const (
	keepVisibility visibility = iota
	hide
	show
)

type rule struct {
	fresh    bool
	statuses []wfrecord.Status
	isTarget bool
	to       wfrecord.Status
	toTarget bool
	hidden   visibility
	effects  []Effect
}

var rules = map[Op]rule{
	OpStart: {
		fresh:   true,
		to:      wfrecord.StatusDraft,
		hidden:  hide,
		effects: []Effect{EffectDraftRights, EffectSave},
	},
	OpStartAsTarget: {
		fresh:    true,
		to:       wfrecord.StatusPublished,
		toTarget: true,
		effects:  []Effect{EffectSave},
	},
	OpSubmitForModeration: {
		statuses: []wfrecord.Status{wfrecord.StatusDraft},
		to:       wfrecord.StatusModerating,
		effects:  []Effect{EffectModeratingRights, EffectSave},
	},
	OpRefuseModeration: {
		statuses: []wfrecord.Status{wfrecord.StatusModerating},
		to:       wfrecord.StatusDraft,
		hidden:   hide,
		effects:  []Effect{EffectDraftRights, EffectSave},
	},
	OpSubmitForValidation: {
		statuses: []wfrecord.Status{wfrecord.StatusModerating, wfrecord.StatusDraft},
		to:       wfrecord.StatusValidating,
		effects:  []Effect{EffectValidatingRights, EffectSave},
	},
	OpRefuseValidation: {
		statuses: []wfrecord.Status{wfrecord.StatusValidating},
		to:       wfrecord.StatusDraft,
		hidden:   hide,
		effects:  []Effect{EffectDraftRights, EffectSave},
	},
	OpValidate: {
		statuses: []wfrecord.Status{wfrecord.StatusValidating},
		to:       wfrecord.StatusValid,
		effects:  []Effect{EffectSave},
	},
	OpPublish: {
		statuses: []wfrecord.Status{wfrecord.StatusValidating, wfrecord.StatusValid},
		to:       wfrecord.StatusPublished,
		effects:  []Effect{EffectCopyToTarget, EffectSave},
	},
	OpEditDraft: {
		statuses: []wfrecord.Status{wfrecord.StatusPublished},
		to:       wfrecord.StatusDraft,
		hidden:   hide,
		effects:  []Effect{EffectDraftRights, EffectSave},
	},
	OpArchive: {
		statuses: []wfrecord.Status{wfrecord.StatusPublished},
		isTarget: true,
		to:       wfrecord.StatusArchived,
		toTarget: true,
		hidden:   hide,
		effects:  []Effect{EffectSave},
	},
	OpPublishFromArchive: {
		statuses: []wfrecord.Status{wfrecord.StatusArchived},
		isTarget: true,
		to:       wfrecord.StatusPublished,
		toTarget: true,
		hidden:   show,
		effects:  []Effect{EffectSave},
	},
	OpUnpublish: {
		statuses: []wfrecord.Status{wfrecord.StatusPublished, wfrecord.StatusArchived},
		isTarget: true,
		to:       wfrecord.StatusDraft,
		hidden:   hide,
		effects:  []Effect{EffectSecureDraft, EffectDeleteTarget},
	},
	OpCreateDraft: {
		statuses: []wfrecord.Status{wfrecord.StatusPublished, wfrecord.StatusArchived},
		isTarget: true,
		effects:  []Effect{EffectCreateDraft},
	},
}

// Plan checks the preconditions of op against from and returns the
// transition it would perform. A non-empty Reason means the operation is
// declined. Plan has no side effects.
func Plan(op Op, from Snapshot) (Transition, Reason) {
	r, ok := rules[op]
	if !ok {
		return Transition{}, ReasonUnknownOperation
	}
	if r.fresh {
		if from.HasRecord {
			return Transition{}, ReasonAlreadyInWorkflow
		}
	} else {
		if !from.HasRecord {
			return Transition{}, ReasonNoWorkflow
		}
		if !statusIn(from.Status, r.statuses) {
			return Transition{}, ReasonWrongStatus
		}
		if from.IsTarget != r.isTarget {
			return Transition{}, ReasonWrongTargetFlag
		}
	}

	to := from
	if r.to != "" {
		to = Snapshot{HasRecord: true, Status: r.to, IsTarget: r.toTarget, Hidden: from.Hidden}
	}
	switch r.hidden {
	case hide:
		to.Hidden = true
	case show:
		to.Hidden = false
	}
	return Transition{Op: op, From: from, To: to, Effects: append([]Effect(nil), r.effects...)}, ""
}

func statusIn(s wfrecord.Status, allowed []wfrecord.Status) bool {
	for _, a := range allowed {
		if a == s {
			return true
		}
	}
	return false
}
