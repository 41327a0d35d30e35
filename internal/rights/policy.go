package rights

import "publication/api/internal/document"

// Roles are the serialized principal lists of a workflow configuration.
type Roles struct {
	Contributors string
	Moderators   string
	Validators   string
}

var fullAccess = []Level{LevelEdit, LevelComment, LevelView}

// ApplyDraft lets every workflow participant edit.
func ApplyDraft(doc *document.Document, roles Roles) {
	SetEntry(doc, 0, Entry{
		Levels: fullAccess,
		Groups: principals(roles.Contributors, roles.Moderators, roles.Validators),
		Allow:  true,
	})
	TruncateFrom(doc, 1)
}

// ApplyModerating gives edit to moderators and validators, view to contributors.
func ApplyModerating(doc *document.Document, roles Roles) {
	SetEntry(doc, 0, Entry{
		Levels: fullAccess,
		Groups: principals(roles.Moderators, roles.Validators),
		Allow:  true,
	})
	SetEntry(doc, 1, Entry{
		Levels: []Level{LevelView},
		Groups: principals(roles.Contributors),
		Allow:  true,
	})
	TruncateFrom(doc, 2)
}

// ApplyValidating gives edit to validators, view to moderators and contributors.
func ApplyValidating(doc *document.Document, roles Roles) {
	SetEntry(doc, 0, Entry{
		Levels: fullAccess,
		Groups: principals(roles.Validators),
		Allow:  true,
	})
	SetEntry(doc, 1, Entry{
		Levels: []Level{LevelView},
		Groups: principals(roles.Moderators, roles.Contributors),
		Allow:  true,
	})
	TruncateFrom(doc, 2)
}
