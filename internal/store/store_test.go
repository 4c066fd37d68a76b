package store_test

import (
	"testing"

	"github.com/absfs/memfs"
	"github.com/efs-io/efs/internal/efsconfig"
	"github.com/efs-io/efs/internal/efserr"
	"github.com/efs-io/efs/internal/namemap"
	"github.com/efs-io/efs/internal/session"
	"github.com/efs-io/efs/internal/store"
	"github.com/efs-io/efs/internal/users"
)

func setup(t *testing.T, username string) (*memfs.FileSystem, *efsconfig.Paths, *namemap.Map, *session.Session) {
	t.Helper()
	fsys, err := memfs.NewFS()
	if err != nil {
		t.Fatalf("memfs.NewFS: %v", err)
	}
	paths := efsconfig.New("/")
	if err := users.Bootstrap(fsys, paths); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	nm, err := namemap.Load(fsys, paths.StructurePath, paths.StructureLockPath, paths.StructureSumPath, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if username != users.AdminUsername {
		if err := users.Create(fsys, paths, nm, username, false); err != nil {
			t.Fatalf("Create %s: %v", username, err)
		}
	}
	key, err := users.LoadKey(fsys, paths, username)
	if err != nil {
		t.Fatalf("LoadKey: %v", err)
	}
	sess := session.New(username, username == users.AdminUsername, key)
	return fsys, paths, nm, sess
}

func TestMakeFileThenReadFileRoundTrip(t *testing.T) {
	fsys, paths, nm, sess := setup(t, "alice")
	sess.PWD = sess.PersonalLogical

	if err := store.MakeFile(fsys, paths, nm, sess, nil, "notes.txt", "hello", nil); err != nil {
		t.Fatalf("MakeFile: %v", err)
	}
	got, err := store.ReadFile(fsys, paths, nm, sess, "notes.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("got %q, want hello", got)
	}
}

func TestMakeDirectoryOutsidePersonalIsForbidden(t *testing.T) {
	fsys, paths, nm, sess := setup(t, "alice")
	// sess.PWD defaults to the user's home root, not personal/.

	err := store.MakeDirectory(fsys, paths, nm, sess, "foo", nil)
	if !efserr.Is(err, efserr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
}

func TestChangeDirectoryOutsideJailIsRejected(t *testing.T) {
	fsys, paths, nm, sess := setup(t, "alice")

	err := store.ChangeDirectory(fsys, paths, nm, sess, "../../etc", nil)
	if !efserr.Is(err, efserr.Forbidden) {
		t.Fatalf("expected Forbidden, got %v", err)
	}
	if sess.PWD != sess.RootLogical {
		t.Fatalf("PWD should be unchanged after a rejected cd, got %q", sess.PWD)
	}
}

func TestChangeDirectoryToTildeReturnsHome(t *testing.T) {
	fsys, paths, nm, sess := setup(t, "alice")
	if err := store.ChangeDirectory(fsys, paths, nm, sess, "personal", nil); err != nil {
		t.Fatalf("cd personal: %v", err)
	}
	if err := store.ChangeDirectory(fsys, paths, nm, sess, "~", nil); err != nil {
		t.Fatalf("cd ~: %v", err)
	}
	if sess.PWD != sess.RootLogical {
		t.Fatalf("PWD = %q, want root after cd ~", sess.PWD)
	}
}

func TestMakeDirectoryDuplicateRejected(t *testing.T) {
	fsys, paths, nm, sess := setup(t, "alice")
	sess.PWD = sess.PersonalLogical

	if err := store.MakeDirectory(fsys, paths, nm, sess, "sub", nil); err != nil {
		t.Fatalf("first MakeDirectory: %v", err)
	}
	err := store.MakeDirectory(fsys, paths, nm, sess, "sub", nil)
	if !efserr.Is(err, efserr.Duplicate) {
		t.Fatalf("expected Duplicate, got %v", err)
	}
}

func TestListCurrentDirectoryShowsCreatedEntries(t *testing.T) {
	fsys, paths, nm, sess := setup(t, "alice")
	sess.PWD = sess.PersonalLogical

	if err := store.MakeFile(fsys, paths, nm, sess, nil, "notes.txt", "hello", nil); err != nil {
		t.Fatalf("MakeFile: %v", err)
	}
	if err := store.MakeDirectory(fsys, paths, nm, sess, "sub", nil); err != nil {
		t.Fatalf("MakeDirectory: %v", err)
	}

	entries, err := store.ListCurrentDirectory(fsys, paths, nm, sess)
	if err != nil {
		t.Fatalf("ListCurrentDirectory: %v", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}

	want := map[string]bool{".": true, "..": true, "notes.txt": true, "sub": true}
	for _, n := range names {
		if !want[n] {
			t.Fatalf("unexpected entry %q in %v", n, names)
		}
		delete(want, n)
	}
	if len(want) != 0 {
		t.Fatalf("missing entries: %v", want)
	}
}

func TestAdminReadsFileUnderOwnersKey(t *testing.T) {
	fsys, paths, nm, alice := setup(t, "alice")
	alice.PWD = alice.PersonalLogical
	if err := store.MakeFile(fsys, paths, nm, alice, nil, "secret.txt", "top secret", nil); err != nil {
		t.Fatalf("MakeFile: %v", err)
	}

	adminKey, err := users.LoadKey(fsys, paths, users.AdminUsername)
	if err != nil {
		t.Fatalf("LoadKey admin: %v", err)
	}
	admin := session.New(users.AdminUsername, true, adminKey)
	admin.PWD = alice.PersonalLogical

	got, err := store.ReadFile(fsys, paths, nm, admin, "secret.txt")
	if err != nil {
		t.Fatalf("admin ReadFile: %v", err)
	}
	if string(got) != "top secret" {
		t.Fatalf("got %q, want top secret", got)
	}
}
