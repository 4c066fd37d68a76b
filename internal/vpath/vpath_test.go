package vpath_test

import (
	"testing"

	"github.com/efs-io/efs/internal/vpath"
)

type fakeResolver struct {
	toToken   map[string]string
	toLogical map[string]string
}

func newFakeResolver() *fakeResolver {
	return &fakeResolver{toToken: map[string]string{}, toLogical: map[string]string{}}
}

func (f *fakeResolver) add(logical, token string) {
	f.toToken[logical] = token
	f.toLogical[token] = logical
}

func (f *fakeResolver) LookupToken(logical string) (string, bool) {
	t, ok := f.toToken[logical]
	return t, ok
}

func (f *fakeResolver) LookupLogical(token string) (string, bool) {
	l, ok := f.toLogical[token]
	return l, ok
}

func TestNormalizeAbsoluteRebasesAtFilesystemRoot(t *testing.T) {
	got := vpath.Normalize("/filesystem/alice", "/bob/personal")
	if got != "/filesystem/bob/personal" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeRelativeDotDot(t *testing.T) {
	got := vpath.Normalize("/filesystem/alice/personal", "../shared/x")
	if got != "/filesystem/alice/shared/x" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeDotDotPastRootStaysAtRoot(t *testing.T) {
	got := vpath.Normalize("/filesystem", "../../../etc")
	if got != "/filesystem/etc" {
		t.Fatalf("got %q", got)
	}
}

func TestNormalizeCurrentDirNoop(t *testing.T) {
	got := vpath.Normalize("/filesystem/alice", ".")
	if got != "/filesystem/alice" {
		t.Fatalf("got %q", got)
	}
}

func TestToRandomizedWalksEachAncestor(t *testing.T) {
	r := newFakeResolver()
	r.add("/filesystem/alice", "TOKALIC0001")
	r.add("/filesystem/alice/personal", "TOKPERS0001")
	r.add("/filesystem/alice/personal/notes.txt", "TOKNOTE0001")

	got, err := vpath.ToRandomized(r, "/filesystem/alice/personal/notes.txt")
	if err != nil {
		t.Fatalf("ToRandomized: %v", err)
	}
	want := "/filesystem/TOKALIC0001/TOKPERS0001/TOKNOTE0001"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestToRandomizedMissingAncestorFails(t *testing.T) {
	r := newFakeResolver()
	r.add("/filesystem/alice", "TOKALIC0001")

	_, err := vpath.ToRandomized(r, "/filesystem/alice/personal/notes.txt")
	if err == nil {
		t.Fatalf("expected error for unmapped ancestor")
	}
}

func TestToRandomizedRejectsNonFilesystemRoot(t *testing.T) {
	r := newFakeResolver()
	if _, err := vpath.ToRandomized(r, "/other/alice"); err == nil {
		t.Fatalf("expected error for path not rooted at /filesystem")
	}
}

func TestToLogicalUsesDeepestTokenOnly(t *testing.T) {
	r := newFakeResolver()
	r.add("/filesystem/alice/personal/notes.txt", "TOKNOTE0001")

	got, err := vpath.ToLogical(r, "/filesystem/TOKALIC0001/TOKPERS0001/TOKNOTE0001")
	if err != nil {
		t.Fatalf("ToLogical: %v", err)
	}
	if got != "/filesystem/alice/personal/notes.txt" {
		t.Fatalf("got %q", got)
	}
}

func TestToLogicalRoot(t *testing.T) {
	r := newFakeResolver()
	got, err := vpath.ToLogical(r, "/filesystem")
	if err != nil {
		t.Fatalf("ToLogical: %v", err)
	}
	if got != "/filesystem" {
		t.Fatalf("got %q", got)
	}
}

func TestParentLogical(t *testing.T) {
	if got := vpath.ParentLogical("/filesystem/alice/personal/notes.txt"); got != "/filesystem/alice/personal" {
		t.Fatalf("got %q", got)
	}
	if got := vpath.ParentLogical("/filesystem/alice"); got != "/filesystem" {
		t.Fatalf("got %q", got)
	}
}
