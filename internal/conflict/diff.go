// Package conflict implements the Conflict Resolver (spec.md C7): producing
// a marked-up merge view of divergent local and remote content, handing it
// to an external editor, and restoring the original bytes if the editor
// fails. The line-diff itself is grounded on github.com/sergi/go-diff, the
// diff-match-patch port the corpus reaches for wherever it needs a textual
// diff (e.g. cfullelove-mcp-workspaces' go.mod).
package conflict

import (
	"bytes"
	"fmt"

	"github.com/sergi/go-diff/diffmatchpatch"
)

const (
	localBegin  = "<<<<<<< LOCAL BEGIN"
	localEnd    = "<<<<<<< LOCAL END"
	remoteBegin = ">>>>>>> REMOTE BEGIN"
	remoteEnd   = ">>>>>>> REMOTE END"
)

// Mark produces the conflict-marked merge view of local and remote file
// content (spec.md §4.7): common lines pass through unchanged, and runs of
// lines present on only one side are bracketed with LOCAL/REMOTE marker
// pairs.
func Mark(local, remote []byte) []byte {
	dmp := diffmatchpatch.New()

	localText, remoteText, lineArray := dmp.DiffLinesToChars(string(local), string(remote))
	diffs := dmp.DiffMain(localText, remoteText, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	var out bytes.Buffer
	i := 0
	for i < len(diffs) {
		d := diffs[i]
		switch d.Type {
		case diffmatchpatch.DiffEqual:
			out.WriteString(d.Text)
			i++
		case diffmatchpatch.DiffDelete:
			// A deletion (local-only) optionally paired with the insertion
			// (remote-only) that immediately follows it forms one conflict
			// block; an unpaired deletion still gets a REMOTE side of
			// nothing, keeping the marker format consistent.
			localLines := d.Text
			remoteLines := ""
			i++
			if i < len(diffs) && diffs[i].Type == diffmatchpatch.DiffInsert {
				remoteLines = diffs[i].Text
				i++
			}
			writeConflictBlock(&out, localLines, remoteLines)
		case diffmatchpatch.DiffInsert:
			writeConflictBlock(&out, "", d.Text)
			i++
		}
	}
	return out.Bytes()
}

func writeConflictBlock(out *bytes.Buffer, localLines, remoteLines string) {
	fmt.Fprintln(out, localBegin)
	out.WriteString(localLines)
	fmt.Fprintln(out, localEnd)
	fmt.Fprintln(out, remoteBegin)
	out.WriteString(remoteLines)
	fmt.Fprintln(out, remoteEnd)
}
