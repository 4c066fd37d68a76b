// Package repl implements the interactive command surface: a shell that
// tokenizes one input line, dispatches it to the store/share/users
// operations below it, and prints the result or a formatted error.
package repl

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/absfs/absfs"
	"github.com/efs-io/efs/internal/efsconfig"
	"github.com/efs-io/efs/internal/efserr"
	"github.com/efs-io/efs/internal/efslog"
	"github.com/efs-io/efs/internal/namemap"
	"github.com/efs-io/efs/internal/session"
	"github.com/efs-io/efs/internal/share"
	"github.com/efs-io/efs/internal/store"
	"github.com/efs-io/efs/internal/users"
	"github.com/efs-io/efs/internal/vpath"
)

// Shell is one logged-in REPL session.
type Shell struct {
	fsys     absfs.FileSystem
	paths    *efsconfig.Paths
	nm       *namemap.Map
	registry *share.Registry
	sess     *session.Session
	logger   efslog.Logger
	audit    efslog.AuditLogger

	in  *bufio.Scanner
	out io.Writer
}

// New builds a Shell for an already-authenticated session.
func New(fsys absfs.FileSystem, paths *efsconfig.Paths, nm *namemap.Map, registry *share.Registry, sess *session.Session, logger efslog.Logger, audit efslog.AuditLogger, in io.Reader, out io.Writer) *Shell {
	return &Shell{
		fsys:     fsys,
		paths:    paths,
		nm:       nm,
		registry: registry,
		sess:     sess,
		logger:   logger,
		audit:    audit,
		in:       bufio.NewScanner(in),
		out:      out,
	}
}

// Run prints the welcome banner and loops reading commands until exit or
// EOF, returning the process exit code.
func (s *Shell) Run() int {
	s.printBanner()

	for {
		fmt.Fprintf(s.out, "%s %s> ", s.sess.Username, displayPWD(s.sess.PWD))

		if !s.in.Scan() {
			fmt.Fprintln(s.out, "\ngoodbye")
			return 0
		}

		line := s.in.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}

		exit, err := s.dispatch(line)
		if err != nil {
			var efsErr *efserr.Error
			if errors.As(err, &efsErr) {
				fmt.Fprintln(s.out, efsErr.UserMessage())
			} else {
				fmt.Fprintln(s.out, err.Error())
			}
		}
		if exit {
			return 0
		}
	}
}

// printBanner reproduces userFeatures's one-time command listing,
// including the admin-only adduser line shown only to admins.
func (s *Shell) printBanner() {
	fmt.Fprintln(s.out, "EFS ready. Available commands:")
	fmt.Fprintln(s.out, "  cd <path>, pwd, ls, cat <name>, share <name> <user>, mkdir <name>, mkfile <name> <contents...>, exit")
	if s.sess.IsAdmin {
		fmt.Fprintln(s.out, "  adduser <name>   (admin only)")
	}
}

func displayPWD(logical string) string {
	trimmed := strings.TrimPrefix(logical, "/"+vpath.Root)
	if trimmed == "" {
		return "/"
	}
	return trimmed
}

func (s *Shell) dispatch(line string) (exit bool, err error) {
	parts := strings.SplitN(line, " ", 2)
	cmd := strings.TrimSpace(parts[0])
	rest := ""
	if len(parts) > 1 {
		rest = parts[1]
	}

	defer func() {
		if s.audit != nil {
			s.audit.LogCommand(cmd, s.sess.Username, efslog.Bool("ok", err == nil))
		}
	}()

	switch cmd {
	case "pwd":
		fmt.Fprintln(s.out, displayPWD(s.sess.PWD))
		return false, nil

	case "ls":
		return false, s.cmdLs()

	case "cd":
		return false, store.ChangeDirectory(s.fsys, s.paths, s.nm, s.sess, strings.TrimSpace(rest), s.audit)

	case "cat":
		return false, s.cmdCat(strings.TrimSpace(rest))

	case "mkdir":
		return false, store.MakeDirectory(s.fsys, s.paths, s.nm, s.sess, strings.TrimSpace(rest), s.audit)

	case "mkfile":
		return false, s.cmdMkfile(rest)

	case "share":
		return false, s.cmdShare(rest)

	case "adduser":
		return false, s.cmdAdduser(strings.TrimSpace(rest))

	case "exit":
		return true, nil

	default:
		return false, efserr.Newf(efserr.BadInput, cmd, "unknown command %q", cmd)
	}
}

func (s *Shell) cmdLs() error {
	entries, err := store.ListCurrentDirectory(s.fsys, s.paths, s.nm, s.sess)
	if err != nil {
		return err
	}
	for _, e := range entries {
		kind := "f"
		if e.IsDir {
			kind = "d"
		}
		fmt.Fprintf(s.out, "%s -> %s\n", kind, e.Name)
	}
	return nil
}

func (s *Shell) cmdCat(name string) error {
	if name == "" {
		return efserr.New(efserr.BadInput, "cat", "missing filename")
	}
	content, err := store.ReadFile(s.fsys, s.paths, s.nm, s.sess, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, string(content))
	return nil
}

// cmdMkfile splits rest into a single filename token and the untokenized
// remainder of the line as file content.
func (s *Shell) cmdMkfile(rest string) error {
	trimmed := strings.TrimLeft(rest, " ")
	fields := strings.SplitN(trimmed, " ", 2)
	name := fields[0]
	content := ""
	if len(fields) > 1 {
		content = fields[1]
	}
	if name == "" {
		return efserr.New(efserr.BadInput, "mkfile", "missing filename")
	}
	return store.MakeFile(s.fsys, s.paths, s.nm, s.sess, s.registry, name, content, s.audit)
}

func (s *Shell) cmdShare(rest string) error {
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return efserr.New(efserr.BadInput, "share", "usage: share <name> <user>")
	}
	return s.registry.Share(s.sess, fields[0], fields[1], s.audit)
}

func (s *Shell) cmdAdduser(name string) error {
	if !s.sess.IsAdmin {
		return efserr.New(efserr.Forbidden, "adduser", "only the admin can add users")
	}
	if name == "" {
		return efserr.New(efserr.BadInput, "adduser", "missing username")
	}
	if err := users.Create(s.fsys, s.paths, s.nm, name, false); err != nil {
		return err
	}
	if s.audit != nil {
		s.audit.LogSecurity("adduser", "info", efslog.String("created_user", name))
	}
	fmt.Fprintf(s.out, "user %s created\n", name)
	return nil
}
