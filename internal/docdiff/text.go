package docdiff

import "strings"

// Conflict is a region both sides changed differently. Line numbers refer to
// the base text.
type Conflict struct {
	BaseStart int
	BaseEnd   int
	Mine      []string
	Theirs    []string
}

type hunk struct {
	start int
	end   int
	lines []string
}

// MergeText merges two revisions of base line by line. Non-overlapping edits
// from both sides are combined; overlapping edits that disagree are reported
// as conflicts and resolved with theirs.
func MergeText(base, mine, theirs string) (string, []Conflict) {
	switch {
	case mine == theirs, theirs == base:
		return mine, nil
	case mine == base:
		return theirs, nil
	}

	baseLines := splitLines(base)
	mh, th := hunksOf(Content(base, mine)), hunksOf(Content(base, theirs))

	var (
		out       []string
		conflicts []Conflict
		pos, i, j int
	)
	for i < len(mh) || j < len(th) {
		var start int
		if j >= len(th) || (i < len(mh) && mh[i].start <= th[j].start) {
			start = mh[i].start
		} else {
			start = th[j].start
		}
		end := start
		gi, gj := i, j
		for {
			grew := false
			if i < len(mh) && (mh[i].start < end || mh[i].start == start) {
				end = maxInt(end, mh[i].end)
				i++
				grew = true
			}
			if j < len(th) && (th[j].start < end || th[j].start == start) {
				end = maxInt(end, th[j].end)
				j++
				grew = true
			}
			if !grew {
				break
			}
		}

		out = append(out, baseLines[pos:start]...)
		mineGroup, theirGroup := mh[gi:i], th[gj:j]
		switch {
		case len(theirGroup) == 0:
			out = append(out, applyHunks(baseLines, start, end, mineGroup)...)
		case len(mineGroup) == 0:
			out = append(out, applyHunks(baseLines, start, end, theirGroup)...)
		default:
			m := applyHunks(baseLines, start, end, mineGroup)
			t := applyHunks(baseLines, start, end, theirGroup)
			if strings.Join(m, "") != strings.Join(t, "") {
				conflicts = append(conflicts, Conflict{BaseStart: start, BaseEnd: end, Mine: m, Theirs: t})
			}
			out = append(out, t...)
		}
		pos = end
	}
	out = append(out, baseLines[pos:]...)
	return strings.Join(out, ""), conflicts
}

func hunksOf(deltas []Delta) []hunk {
	out := make([]hunk, 0, len(deltas))
	for _, d := range deltas {
		out = append(out, hunk{start: d.Position, end: d.Position + len(d.Original), lines: d.Revised})
	}
	return out
}

func applyHunks(base []string, start, end int, hunks []hunk) []string {
	var out []string
	pos := start
	for _, h := range hunks {
		out = append(out, base[pos:h.start]...)
		out = append(out, h.lines...)
		pos = h.end
	}
	return append(out, base[pos:end]...)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
