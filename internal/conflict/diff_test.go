package conflict

import (
	"strings"
	"testing"
)

func TestMarkPreservesCommonLines(t *testing.T) {
	local := []byte("line one\nline two\nline three\n")
	remote := []byte("line one\nline two\nline three\n")

	marked := Mark(local, remote)
	if strings.Contains(string(marked), localBegin) {
		t.Fatalf("expected no conflict markers for identical content, got:\n%s", marked)
	}
	if string(marked) != string(local) {
		t.Fatalf("expected identical passthrough, got:\n%s", marked)
	}
}

func TestMarkBracketsDivergentLines(t *testing.T) {
	local := []byte("shared header\nlocal change\nshared footer\n")
	remote := []byte("shared header\nremote change\nshared footer\n")

	marked := string(Mark(local, remote))

	for _, want := range []string{localBegin, localEnd, remoteBegin, remoteEnd, "shared header", "shared footer", "local change", "remote change"} {
		if !strings.Contains(marked, want) {
			t.Fatalf("expected marked output to contain %q, got:\n%s", want, marked)
		}
	}

	if strings.Index(marked, localBegin) > strings.Index(marked, "local change") {
		t.Fatalf("expected LOCAL BEGIN marker to precede local content")
	}
}
