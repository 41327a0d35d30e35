// Package docdiff computes differences between document versions and merges
// them three ways. Stores expose these as their diff and merge primitives.
package docdiff

import (
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type DeltaType string

const (
	DeltaChange DeltaType = "change"
	DeltaDelete DeltaType = "delete"
	DeltaInsert DeltaType = "insert"
)

// Delta is one contiguous line-level difference. Position is the 0-based
// line in the original text where it applies.
type Delta struct {
	Type     DeltaType
	Position int
	Original []string
	Revised  []string
}

// Content returns the line deltas turning from into to.
func Content(from, to string) []Delta {
	if from == to {
		return nil
	}
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(from, to)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)

	var (
		out []Delta
		cur *Delta
		pos int
	)
	flush := func() {
		if cur == nil {
			return
		}
		switch {
		case len(cur.Original) == 0:
			cur.Type = DeltaInsert
		case len(cur.Revised) == 0:
			cur.Type = DeltaDelete
		default:
			cur.Type = DeltaChange
		}
		out = append(out, *cur)
		cur = nil
	}
	for _, d := range diffs {
		chunk := splitLines(d.Text)
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			flush()
			pos += len(chunk)
		case diffmatchpatch.DiffDelete:
			if cur == nil {
				cur = &Delta{Position: pos}
			}
			cur.Original = append(cur.Original, chunk...)
			pos += len(chunk)
		case diffmatchpatch.DiffInsert:
			if cur == nil {
				cur = &Delta{Position: pos}
			}
			cur.Revised = append(cur.Revised, chunk...)
		}
	}
	flush()
	return out
}

// splitLines cuts text into lines, keeping the trailing newline of each.
func splitLines(text string) []string {
	var out []string
	for len(text) > 0 {
		idx := strings.IndexByte(text, '\n')
		if idx < 0 {
			out = append(out, text)
			break
		}
		out = append(out, text[:idx+1])
		text = text[idx+1:]
	}
	return out
}
