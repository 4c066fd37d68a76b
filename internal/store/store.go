// Package store implements directory listing, navigation, and
// file/directory creation and reading over the randomized on-disk tree,
// mediated by the name map and path translator and expressed purely
// against absfs.FileSystem so it works the same over any backing store.
package store

import (
	"path"
	"regexp"
	"strings"

	"github.com/absfs/absfs"
	"github.com/efs-io/efs/internal/blob"
	"github.com/efs-io/efs/internal/efsconfig"
	"github.com/efs-io/efs/internal/efserr"
	"github.com/efs-io/efs/internal/efslog"
	"github.com/efs-io/efs/internal/jail"
	"github.com/efs-io/efs/internal/namemap"
	"github.com/efs-io/efs/internal/session"
	"github.com/efs-io/efs/internal/share"
	"github.com/efs-io/efs/internal/users"
	"github.com/efs-io/efs/internal/vpath"
)

// logAccess records a jail allow/deny decision. audit may be nil, in
// which case the decision simply isn't recorded (tests exercise the jail
// logic directly without an audit sink wired up).
func logAccess(audit efslog.AuditLogger, resource, action string, allowed bool) {
	if audit == nil {
		return
	}
	audit.LogAccess(resource, action, allowed)
}

// Entry is one directory listing row.
type Entry struct {
	Name  string
	IsDir bool
}

// filenameGrammar accepts a bare name or a dotted-extension name, built
// without a negative lookahead: "\.(?!$)[a-zA-Z0-9_-]+" would require at
// least one trailing character after the dot, but the "+" quantifier
// alone already guarantees that, so the lookahead would be redundant —
// and RE2 doesn't support it anyway.
var filenameGrammar = regexp.MustCompile(
	`^[a-zA-Z0-9](?:[a-zA-Z0-9 ._-]*[a-zA-Z0-9])?(\.[a-zA-Z0-9_-]+)+$` +
		`|^[a-zA-Z0-9](?:[a-zA-Z0-9 ._-]*[a-zA-Z0-9])?$`,
)

const maxFilenameLength = 255

func isValidFilename(name string) bool {
	return len(name) <= maxFilenameLength && filenameGrammar.MatchString(name)
}

// ListCurrentDirectory lists sess.PWD: "." always, ".." when not at the
// user's root, then every non-dotfile entry as "d" or "f" by its
// plaintext leaf name.
func ListCurrentDirectory(fsys absfs.FileSystem, paths *efsconfig.Paths, nm *namemap.Map, sess *session.Session) ([]Entry, error) {
	entries := []Entry{{Name: ".", IsDir: true}}
	if sess.PWD != sess.RootLogical {
		entries = append(entries, Entry{Name: "..", IsDir: true})
	}

	physicalDir, err := physicalPath(nm, paths, sess.PWD)
	if err != nil {
		return nil, err
	}

	f, err := fsys.Open(physicalDir)
	if err != nil {
		return nil, efserr.Wrap(efserr.IoFailure, "ls", err).WithPath(sess.PWD)
	}
	defer f.Close()

	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, efserr.Wrap(efserr.IoFailure, "ls", err).WithPath(sess.PWD)
	}

	for _, info := range infos {
		token := info.Name()
		if strings.HasPrefix(token, ".") {
			continue
		}
		logical, ok := nm.LookupLogical(token)
		if !ok {
			continue
		}
		entries = append(entries, Entry{Name: path.Base(logical), IsDir: info.IsDir()})
	}

	return entries, nil
}

// ChangeDirectory resolves name against sess.PWD and, if it exists, is a
// directory, and lies within the caller's jail, moves sess.PWD there.
// Otherwise sess.PWD is left untouched and a typed error is returned.
func ChangeDirectory(fsys absfs.FileSystem, paths *efsconfig.Paths, nm *namemap.Map, sess *session.Session, name string, audit efslog.AuditLogger) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed == "/" || trimmed == "~" {
		sess.PWD = sess.RootLogical
		return nil
	}
	if jail.HasForbiddenChars(trimmed) {
		return efserr.New(efserr.BadInput, "cd", "argument contains a forbidden character")
	}

	target := vpath.Normalize(sess.PWD, trimmed)
	if !sess.IsAdmin {
		allowed := jail.Contains(sess.RootLogical, target)
		logAccess(audit, target, "cd", allowed)
		if !allowed {
			return efserr.New(efserr.Forbidden, "cd", "Directory is outside of the root directory.")
		}
	}

	physicalDir, err := physicalPath(nm, paths, target)
	if err != nil {
		return err
	}

	info, err := fsys.Stat(physicalDir)
	if err != nil {
		return efserr.Newf(efserr.NotFound, "cd", "no such directory").WithPath(target)
	}
	if !info.IsDir() {
		return efserr.Newf(efserr.NotFound, "cd", "not a directory").WithPath(target)
	}

	sess.PWD = target
	return nil
}

// MakeDirectory creates name under sess.PWD, which must be in the
// caller's personal/ subtree unless the caller is the admin.
func MakeDirectory(fsys absfs.FileSystem, paths *efsconfig.Paths, nm *namemap.Map, sess *session.Session, name string, audit efslog.AuditLogger) error {
	if err := validateCreateName(name); err != nil {
		return err
	}
	if err := requireWritable(sess, audit); err != nil {
		return err
	}

	logical := sess.PWD + "/" + name
	if _, exists := nm.LookupToken(logical); exists {
		return efserr.Newf(efserr.Duplicate, "mkdir", "%s already exists", name).WithPath(logical)
	}

	token, err := nm.Allocate(logical)
	if err != nil {
		return err
	}

	physicalPWD, err := physicalPath(nm, paths, sess.PWD)
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(path.Join(physicalPWD, token), 0755); err != nil {
		return efserr.Wrap(efserr.IoFailure, "mkdir", err).WithPath(logical)
	}

	return nil
}

// MakeFile writes content under sess.PWD as name, encrypted under the
// caller's key, creating the entry if absent or overwriting an existing
// regular file's token in place, then fans the new content out to every
// share recipient via registry.
func MakeFile(fsys absfs.FileSystem, paths *efsconfig.Paths, nm *namemap.Map, sess *session.Session, registry *share.Registry, name, content string, audit efslog.AuditLogger) error {
	if strings.Contains(name, "/") {
		return efserr.New(efserr.BadInput, "mkfile", "filename must not contain '/'")
	}
	if !isValidFilename(name) {
		return efserr.Newf(efserr.BadInput, "mkfile", "%q is not a valid filename", name)
	}
	if err := requireWritable(sess, audit); err != nil {
		return err
	}

	logical := sess.PWD + "/" + name
	physicalPWD, err := physicalPath(nm, paths, sess.PWD)
	if err != nil {
		return err
	}

	token, exists := nm.LookupToken(logical)
	if exists {
		info, statErr := fsys.Stat(path.Join(physicalPWD, token))
		if statErr == nil && info.IsDir() {
			return efserr.Newf(efserr.Duplicate, "mkfile", "%s is a directory", name).WithPath(logical)
		}
	} else {
		token, err = nm.Allocate(logical)
		if err != nil {
			return err
		}
	}

	physicalFile := path.Join(physicalPWD, token)
	if err := blob.EncryptFile(fsys, physicalFile, []byte(content), sess.Key); err != nil {
		return err
	}

	if registry != nil {
		if err := registry.PropagateEdit(token, []byte(content)); err != nil {
			return err
		}
	}

	return nil
}

// ReadFile decrypts name under sess.PWD. A non-admin uses their own key;
// an admin derives the owning user from the second component of the
// current virtual path and loads that user's key instead.
func ReadFile(fsys absfs.FileSystem, paths *efsconfig.Paths, nm *namemap.Map, sess *session.Session, name string) ([]byte, error) {
	if strings.Contains(name, "/") {
		return nil, efserr.New(efserr.BadInput, "cat", "filename must not contain '/'")
	}

	logical := sess.PWD + "/" + name
	randomized, err := vpath.ToRandomized(nm, logical)
	if err != nil {
		return nil, err
	}
	physicalFile := path.Join(paths.Root, randomized)

	info, err := fsys.Stat(physicalFile)
	if err != nil {
		return nil, efserr.Newf(efserr.NotFound, "cat", "no such file").WithPath(logical)
	}
	if info.IsDir() {
		return nil, efserr.Newf(efserr.BadInput, "cat", "%s is a directory", name).WithPath(logical)
	}

	key := sess.Key
	if sess.IsAdmin {
		owner := ownerFromVirtualPath(sess.PWD)
		if owner == "" {
			return nil, efserr.New(efserr.BadInput, "cat", "cannot determine owning user from current path")
		}
		key, err = users.LoadKey(fsys, paths, owner)
		if err != nil {
			return nil, err
		}
	}

	return blob.DecryptFile(fsys, physicalFile, key)
}

// ownerFromVirtualPath returns the second component of a /filesystem/...
// logical path: the owning user's username.
func ownerFromVirtualPath(logical string) string {
	parts := strings.Split(strings.Trim(logical, "/"), "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func requireWritable(sess *session.Session, audit efslog.AuditLogger) error {
	if sess.IsAdmin {
		return nil
	}
	allowed := jail.Contains(sess.PersonalLogical, sess.PWD)
	logAccess(audit, sess.PWD, "write", allowed)
	if !allowed {
		return efserr.New(efserr.Forbidden, "write", "writes are only permitted inside your personal directory")
	}
	return nil
}

func validateCreateName(name string) error {
	if name == "" || strings.Contains(name, "/") || jail.HasForbiddenChars(name) {
		return efserr.New(efserr.BadInput, "mkdir", "invalid directory name")
	}
	if name == vpath.Root || name == "." || name == ".." {
		return efserr.Newf(efserr.BadInput, "mkdir", "%q is a reserved name", name)
	}
	return nil
}

func physicalPath(nm *namemap.Map, paths *efsconfig.Paths, logical string) (string, error) {
	randomized, err := vpath.ToRandomized(nm, logical)
	if err != nil {
		return "", err
	}
	return path.Join(paths.Root, randomized), nil
}
