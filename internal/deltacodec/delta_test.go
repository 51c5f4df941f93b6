package deltacodec

import "testing"

func TestSignatureDeltaPatchRoundTripIdentical(t *testing.T) {
	base := []byte("the quick brown fox jumps over the lazy dog, again and again")
	sig := ComputeSignature(base, 8)
	delta := Deltafy(base, sig)

	patched, err := ApplyPatch(base, 8, delta)
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	if string(patched) != string(base) {
		t.Fatalf("round trip mismatch:\n got  %q\n want %q", patched, base)
	}
}

func TestDeltaHandlesAppendedSuffix(t *testing.T) {
	base := []byte("0123456789abcdef0123456789abcdef")
	target := append(append([]byte(nil), base...), []byte("-NEW-SUFFIX")...)

	sig := ComputeSignature(base, 8)
	delta := Deltafy(target, sig)

	patched, err := ApplyPatch(base, 8, delta)
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	if string(patched) != string(target) {
		t.Fatalf("round trip mismatch:\n got  %q\n want %q", patched, target)
	}
}

func TestDeltaHandlesEmptyBase(t *testing.T) {
	sig := ComputeSignature(nil, 8)
	target := []byte("brand new content")

	delta := Deltafy(target, sig)
	patched, err := ApplyPatch(nil, 8, delta)
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	if string(patched) != string(target) {
		t.Fatalf("round trip mismatch:\n got  %q\n want %q", patched, target)
	}
}

func TestDeltaHandlesEmptyTarget(t *testing.T) {
	base := []byte("some base content that will be entirely deleted")
	sig := ComputeSignature(base, 8)

	delta := Deltafy(nil, sig)
	patched, err := ApplyPatch(base, 8, delta)
	if err != nil {
		t.Fatalf("ApplyPatch failed: %v", err)
	}
	if len(patched) != 0 {
		t.Fatalf("expected empty result, got %q", patched)
	}
}

func TestApplyPatchRejectsOutOfRangeBlockIndex(t *testing.T) {
	base := []byte("short base")
	_, err := ApplyPatch(base, 8, Delta{{Kind: OpBlock, Index: 99}})
	if err == nil {
		t.Fatal("expected an error for an out-of-range block index")
	}
}
