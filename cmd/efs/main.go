// Command efs is the EFS invocation entry point: ./efs [keyfile]. If the
// installation has not been bootstrapped yet, it bootstraps and enters
// the REPL as admin; otherwise the keyfile's basename identifies the
// logging-in user.
//
// flashflags.FlagSet exposes no accessor for remaining positional
// arguments, so the keyfile argument is read straight from os.Args
// alongside, rather than through, the flag set.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/absfs/absfs"
	"github.com/absfs/osfs"
	"github.com/agilira/flash-flags"
	"github.com/efs-io/efs/internal/efsconfig"
	"github.com/efs-io/efs/internal/efslog"
	"github.com/efs-io/efs/internal/namemap"
	"github.com/efs-io/efs/internal/repl"
	"github.com/efs-io/efs/internal/session"
	"github.com/efs-io/efs/internal/share"
	"github.com/efs-io/efs/internal/users"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(argv []string) int {
	flags := flashflags.New("efs")
	flags.String("root", ".", "installation root directory")
	if err := flags.Parse(argv); err != nil {
		fmt.Fprintln(os.Stderr, "efs:", err)
		return 1
	}
	root := flags.GetString("root")

	logger := efslog.NewTextLogger(os.Stderr)
	audit := efslog.NewTextAuditLogger(logger)

	fsys := osfs.New()
	paths := efsconfig.New(root)

	if _, err := fsys.Stat(paths.Filesystem); os.IsNotExist(err) {
		logger.Info("bootstrapping new installation", efslog.String("root", paths.Root))
		if err := users.Bootstrap(fsys, paths); err != nil {
			fmt.Fprintln(os.Stderr, "efs: bootstrap failed:", err)
			return 1
		}
		return login(fsys, paths, logger, audit, users.AdminUsername)
	}

	positional := positionalArgs(argv)
	if len(positional) < 1 {
		fmt.Fprintln(os.Stderr, "efs: usage: efs [keyfile]")
		return 1
	}

	username := usernameFromKeyfile(positional[0])
	if !users.Exists(fsys, paths, username) {
		fmt.Fprintf(os.Stderr, "efs: user %s does not exist\n", username)
		return 1
	}

	return login(fsys, paths, logger, audit, username)
}

// positionalArgs strips recognized --flag[=value] tokens, leaving the
// keyfile argument behind.
func positionalArgs(argv []string) []string {
	var out []string
	for i := 0; i < len(argv); i++ {
		arg := argv[i]
		if !strings.HasPrefix(arg, "-") {
			out = append(out, arg)
			continue
		}
		if !strings.Contains(arg, "=") && i+1 < len(argv) {
			i++
		}
	}
	return out
}

func usernameFromKeyfile(keyfile string) string {
	base := filepath.Base(keyfile)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return strings.TrimSuffix(base, "_key")
}

// login loads username's key and admin status, builds a Session and the
// shared name map, and runs the REPL to completion over stdin/stdout.
func login(fsys absfs.FileSystem, paths *efsconfig.Paths, logger efslog.Logger, audit efslog.AuditLogger, username string) int {
	key, err := users.LoadKey(fsys, paths, username)
	if err != nil {
		fmt.Fprintln(os.Stderr, "efs: cannot load key:", err)
		return 1
	}
	isAdmin := users.IsAdmin(fsys, paths, username)

	nm, err := namemap.Load(fsys, paths.StructurePath, paths.StructureLockPath, paths.StructureSumPath, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "efs: cannot load name map:", err)
		return 1
	}

	sess := session.New(username, isAdmin, key)
	registry := share.NewRegistry(fsys, paths, nm)

	logger.Info("session started", efslog.String("user", username), efslog.Bool("admin", isAdmin))
	shell := repl.New(fsys, paths, nm, registry, sess, logger, audit, os.Stdin, os.Stdout)
	return shell.Run()
}
