// Package messages renders the change messages stored with workflow saves.
// Translations live in a golang.org/x/text catalog; keys without a
// translation for the configured language use the caller's English default.
package messages

import (
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

// MaxChangeMessage is the longest change message a store accepts.
const MaxChangeMessage = 255

// Keys of the workflow change messages.
const (
	KeyStart               = "workflow.save.start"
	KeyStartAsTarget       = "workflow.save.startastarget"
	KeySubmitForModeration = "workflow.save.submitForModeration"
	KeyRefuseModeration    = "workflow.save.refuseModeration"
	KeySubmitForValidation = "workflow.save.submitForValidation"
	KeyRefuseValidation    = "workflow.save.refuseValidation"
	KeyValidate            = "workflow.save.validate"
	KeyPublishNew          = "workflow.save.publishNew"
	KeyPublishDraft        = "workflow.save.publishDraft"
	KeyUnpublish           = "workflow.save.unpublish"
	KeyBackToDraft         = "workflow.save.backToDraft"
	KeyArchive             = "workflow.save.archive"
	KeyPublishFromArchive  = "workflow.save.publishFromArchive"
	KeyCreateDraft         = "workflow.save.createDraft"
)

var translations = map[language.Tag]map[string]string{
	language.French: {
		KeyStart:               "Workflow %s démarré sur le document %s",
		KeyStartAsTarget:       "Workflow %s démarré sur le document publié %s",
		KeySubmitForModeration: "Document %s soumis à la modération",
		KeyRefuseModeration:    "Modération refusée : %s",
		KeySubmitForValidation: "Document %s soumis à la validation",
		KeyRefuseValidation:    "Publication refusée : %s",
		KeyValidate:            "Document %s marqué comme valide.",
		KeyPublishNew:          "Nouvelle version du document publiée.",
		KeyPublishDraft:        "Document publié vers %s.",
		KeyUnpublish:           "Brouillon créé à partir du document publié %s.",
		KeyBackToDraft:         "Retour au statut brouillon pour permettre l'édition.",
		KeyArchive:             "Document archivé.",
		KeyPublishFromArchive:  "Document publié depuis une archive.",
		KeyCreateDraft:         "Brouillon créé pour %s.",
	},
	language.German: {
		KeyStart:               "Workflow %s für Dokument %s gestartet",
		KeySubmitForModeration: "Dokument %s zur Moderation eingereicht",
		KeyRefuseModeration:    "Moderation abgelehnt: %s",
		KeySubmitForValidation: "Dokument %s zur Prüfung eingereicht",
		KeyRefuseValidation:    "Veröffentlichung abgelehnt: %s",
		KeyPublishNew:          "Neue Version des Dokuments veröffentlicht.",
		KeyPublishDraft:        "Dokument nach %s veröffentlicht.",
		KeyArchive:             "Dokument archiviert.",
	},
}

// Catalog renders messages in a single language.
type Catalog struct {
	printer *message.Printer
	known   map[string]bool
}

// New builds a catalog for lang, a BCP 47 tag. Languages without
// translations render every message from its default.
func New(lang string) (*Catalog, error) {
	requested, err := language.Parse(lang)
	if err != nil {
		return nil, fmt.Errorf("parse language %q: %w", lang, err)
	}

	builder := catalog.NewBuilder(catalog.Fallback(language.English))
	supported := []language.Tag{language.English}
	for tag, entries := range translations {
		supported = append(supported, tag)
		for key, msg := range entries {
			if err := builder.SetString(tag, key, msg); err != nil {
				return nil, fmt.Errorf("register message %s: %w", key, err)
			}
		}
	}

	_, idx, confidence := language.NewMatcher(supported).Match(requested)
	matched := language.English
	if confidence != language.No {
		matched = supported[idx]
	}
	known := make(map[string]bool, len(translations[matched]))
	for key := range translations[matched] {
		known[key] = true
	}
	return &Catalog{
		printer: message.NewPrinter(matched, message.Catalog(builder)),
		known:   known,
	}, nil
}

// Message renders key with params, or fallback when the key has no
// translation. The result is capped at MaxChangeMessage characters.
func (c *Catalog) Message(key, fallback string, params ...any) string {
	if c != nil && c.known[key] {
		return Truncate(c.printer.Sprintf(key, params...))
	}
	return Truncate(fmt.Sprintf(fallback, params...))
}

// Truncate caps s at MaxChangeMessage characters without splitting a rune.
func Truncate(s string) string {
	if utf8.RuneCountInString(s) <= MaxChangeMessage {
		return s
	}
	return string([]rune(s)[:MaxChangeMessage])
}
