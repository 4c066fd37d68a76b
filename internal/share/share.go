// Package share implements the share registry: tracking which of a
// user's source files are mirrored to which recipients, and
// re-propagating new content to every mirror whenever the source is
// rewritten. Each record file holds one "<username>:<logical path>" line
// per recipient the source has been shared with.
package share

import (
	"bufio"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/absfs/absfs"
	"github.com/efs-io/efs/internal/blob"
	"github.com/efs-io/efs/internal/efsconfig"
	"github.com/efs-io/efs/internal/efserr"
	"github.com/efs-io/efs/internal/efslog"
	"github.com/efs-io/efs/internal/jail"
	"github.com/efs-io/efs/internal/namemap"
	"github.com/efs-io/efs/internal/session"
	"github.com/efs-io/efs/internal/users"
	"github.com/efs-io/efs/internal/vpath"
)

// Registry is the share registry bound to one installation.
type Registry struct {
	fsys  absfs.FileSystem
	paths *efsconfig.Paths
	nm    *namemap.Map
}

// NewRegistry builds a Registry over fsys/paths, resolving names via nm.
func NewRegistry(fsys absfs.FileSystem, paths *efsconfig.Paths, nm *namemap.Map) *Registry {
	return &Registry{fsys: fsys, paths: paths, nm: nm}
}

type record struct {
	recipient string
	logical   string
}

// Share shares srcName (a file in the caller's current directory) with
// recipient: the source is decrypted under the caller's key, re-encrypted
// under recipient's key at a deterministic mirror path under
// recipient's shared/ directory, and a record line is appended to
// shared/<src_token>.
func (r *Registry) Share(sess *session.Session, srcName, recipient string, audit efslog.AuditLogger) error {
	if strings.Contains(srcName, "/") {
		return efserr.New(efserr.BadInput, "share", "source filename must not contain '/'")
	}
	if jail.HasForbiddenChars(srcName) || jail.HasForbiddenChars(recipient) {
		return efserr.New(efserr.BadInput, "share", "argument contains a forbidden character")
	}
	allowed := jail.Contains(sess.PersonalLogical, sess.PWD)
	if audit != nil {
		audit.LogAccess(sess.PWD, "share", allowed)
	}
	if !allowed {
		return efserr.New(efserr.Forbidden, "share", "sharing is only permitted from your personal directory")
	}

	srcLogical := sess.PWD + "/" + srcName
	srcRandomized, err := vpath.ToRandomized(r.nm, srcLogical)
	if err != nil {
		return err
	}
	srcToken := path.Base(srcRandomized)
	srcPhysical := path.Join(r.paths.Root, srcRandomized)

	info, err := r.fsys.Stat(srcPhysical)
	if err != nil || info.IsDir() {
		return efserr.Newf(efserr.NotFound, "share", "%s does not exist", srcName).WithPath(srcLogical)
	}

	if !users.Exists(r.fsys, r.paths, recipient) {
		return efserr.Newf(efserr.NotFound, "share", "user %s does not exist", recipient).WithPath(recipient)
	}

	recipientLogical := fmt.Sprintf("/%s/%s/shared/%s-%s", vpath.Root, recipient, sess.Username, srcName)

	already, err := r.AlreadyShared(recipient, recipientLogical)
	if err != nil {
		return err
	}
	if already {
		return efserr.Newf(efserr.Duplicate, "share",
			"A file with name %s has already been shared with %s", srcName, recipient).WithPath(srcLogical)
	}

	plaintext, err := blob.DecryptFile(r.fsys, srcPhysical, sess.Key)
	if err != nil {
		return err
	}

	if _, err := r.nm.Allocate(recipientLogical); err != nil {
		return err
	}
	recipientRandomized, err := vpath.ToRandomized(r.nm, recipientLogical)
	if err != nil {
		return err
	}

	recipientKey, err := users.LoadKey(r.fsys, r.paths, recipient)
	if err != nil {
		return err
	}

	mirrorPhysical := path.Join(r.paths.Root, recipientRandomized)
	if err := blob.EncryptFile(r.fsys, mirrorPhysical, plaintext, recipientKey); err != nil {
		return err
	}

	return r.appendRecord(srcToken, recipient, recipientLogical)
}

// PropagateEdit re-encrypts newPlaintext under every recipient recorded
// for srcToken at their mirror path. Best-effort: a failure writing one
// recipient's mirror does not stop the fan-out to the rest, so earlier
// writes remain applied even if a later one fails.
func (r *Registry) PropagateEdit(srcToken string, newPlaintext []byte) error {
	records, err := r.readRecords(srcToken)
	if err != nil {
		return err
	}

	var firstErr error
	for _, rec := range records {
		if err := r.propagateOne(rec, newPlaintext); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *Registry) propagateOne(rec record, newPlaintext []byte) error {
	key, err := users.LoadKey(r.fsys, r.paths, rec.recipient)
	if err != nil {
		return err
	}
	randomized, err := vpath.ToRandomized(r.nm, rec.logical)
	if err != nil {
		return err
	}
	physical := path.Join(r.paths.Root, randomized)
	return blob.EncryptFile(r.fsys, physical, newPlaintext, key)
}

// AlreadyShared scans every record file in shared/ for a line whose
// recipient and logical path match exactly.
func (r *Registry) AlreadyShared(recipient, projectedLogical string) (bool, error) {
	f, err := r.fsys.Open(r.paths.SharedDir)
	if err != nil {
		return false, nil
	}
	names, err := f.Readdirnames(-1)
	f.Close()
	if err != nil {
		return false, efserr.Wrap(efserr.IoFailure, "share", err).WithPath(r.paths.SharedDir)
	}

	for _, name := range names {
		records, err := r.readRecords(name)
		if err != nil {
			continue
		}
		for _, rec := range records {
			if rec.recipient == recipient && rec.logical == projectedLogical {
				return true, nil
			}
		}
	}
	return false, nil
}

func (r *Registry) readRecords(srcToken string) ([]record, error) {
	recordPath := path.Join(r.paths.SharedDir, srcToken)
	f, err := r.fsys.Open(recordPath)
	if err != nil {
		return nil, nil
	}
	defer f.Close()

	var records []record
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		idx := strings.Index(line, ":")
		if idx < 0 {
			continue
		}
		records = append(records, record{recipient: line[:idx], logical: line[idx+1:]})
	}
	return records, nil
}

func (r *Registry) appendRecord(srcToken, recipient, recipientLogical string) error {
	recordPath := path.Join(r.paths.SharedDir, srcToken)
	existing, _ := r.readRecords(srcToken)
	existing = append(existing, record{recipient: recipient, logical: recipientLogical})

	f, err := r.fsys.OpenFile(recordPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "share", err).WithPath(recordPath)
	}
	defer f.Close()

	for _, rec := range existing {
		if _, err := fmt.Fprintf(f, "%s:%s\n", rec.recipient, rec.logical); err != nil {
			return efserr.Wrap(efserr.IoFailure, "share", err).WithPath(recordPath)
		}
	}
	return nil
}
