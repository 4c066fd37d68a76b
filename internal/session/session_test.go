package session_test

import (
	"testing"

	"github.com/efs-io/efs/internal/session"
)

func TestNewRegularUserIsJailedToHome(t *testing.T) {
	s := session.New("alice", false, []byte("key"))
	if s.RootLogical != "/filesystem/alice" {
		t.Fatalf("RootLogical = %q", s.RootLogical)
	}
	if s.PWD != "/filesystem/alice" {
		t.Fatalf("PWD = %q, want home dir on login", s.PWD)
	}
	if s.PersonalLogical != "/filesystem/alice/personal" {
		t.Fatalf("PersonalLogical = %q", s.PersonalLogical)
	}
	if s.SharedLogical != "/filesystem/alice/shared" {
		t.Fatalf("SharedLogical = %q", s.SharedLogical)
	}
}

func TestNewAdminIsJailedToFilesystemRoot(t *testing.T) {
	s := session.New("admin", true, []byte("key"))
	if s.RootLogical != "/filesystem" {
		t.Fatalf("RootLogical = %q, want /filesystem for admin", s.RootLogical)
	}
	if !s.IsAdmin {
		t.Fatalf("expected IsAdmin true")
	}
}
