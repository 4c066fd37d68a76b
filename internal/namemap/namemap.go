// Package namemap implements a process-wide persistent bidirectional
// mapping between randomized on-disk tokens and the full plaintext
// logical path each token resolves to. It is the single source of truth
// the rest of EFS uses to translate between what a user sees and what is
// actually stored on disk, backed by a JSON document guarded by a mutex
// and an advisory on-disk lock.
package namemap

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"os"
	"path"
	"sync"

	"github.com/absfs/absfs"
	"github.com/efs-io/efs/internal/efserr"
	"github.com/efs-io/efs/internal/efslog"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	tokenAlphabet       = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	tokenLength         = 10
	maxCollisionRetries = 16
)

// Map is the persisted token -> logical-path document plus an in-memory
// reverse index kept to avoid a linear scan on every logical-to-token
// lookup.
type Map struct {
	mu       sync.RWMutex
	fsys     absfs.FileSystem
	path     string // document path, e.g. common/structure.json
	lockPath string
	sumPath  string
	logger   efslog.Logger

	forward map[string]string // token -> logical path
	reverse map[string]string // logical path -> token
}

// Load reads (or, if absent, treats as empty) the document at docPath and
// returns a ready Map. Callers normally point this at common/structure.json.
func Load(fsys absfs.FileSystem, docPath, lockPath, sumPath string, logger efslog.Logger) (*Map, error) {
	m := &Map{
		fsys:     fsys,
		path:     docPath,
		lockPath: lockPath,
		sumPath:  sumPath,
		logger:   logger,
		forward:  make(map[string]string),
		reverse:  make(map[string]string),
	}

	f, err := fsys.Open(docPath)
	if err != nil {
		if os.IsNotExist(err) {
			return m, nil
		}
		return nil, efserr.Wrap(efserr.IoFailure, "namemap", err).WithPath(docPath)
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return nil, efserr.Wrap(efserr.IoFailure, "namemap", err).WithPath(docPath)
	}

	m.verifyChecksum(raw)

	if len(raw) > 0 {
		var doc map[string]string
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, efserr.Wrap(efserr.IoFailure, "namemap", fmt.Errorf("parsing %s: %w", docPath, err)).WithPath(docPath)
		}
		for token, logical := range doc {
			m.forward[token] = logical
			m.reverse[logical] = token
		}
	}

	return m, nil
}

// verifyChecksum logs (but does not fail on) a mismatch between the
// document and its BLAKE2b sidecar. A reader can legitimately observe the
// document mid-write, so a stale sum is a diagnostic, not a hard error;
// a missing or unreadable sum file is ignored.
func (m *Map) verifyChecksum(raw []byte) {
	sumFile, err := m.fsys.Open(m.sumPath)
	if err != nil {
		return
	}
	defer sumFile.Close()

	want, err := io.ReadAll(sumFile)
	if err != nil {
		return
	}

	got := checksum(raw)
	if string(want) != got {
		if m.logger != nil {
			m.logger.Warn("structure.json checksum mismatch, a concurrent writer may have torn the document",
				efslog.String("path", m.path))
		}
	}
}

func checksum(raw []byte) string {
	sum := blake2b.Sum256(raw)
	return fmt.Sprintf("%x", sum)
}

// Allocate generates a fresh 10-character token, retrying on the
// negligible-but-nonzero chance of a collision, inserts token -> logical
// into the map, persists the document, and returns token.
func (m *Map) Allocate(logical string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var token string
	for i := 0; i < maxCollisionRetries; i++ {
		candidate, err := generateToken()
		if err != nil {
			return "", efserr.Wrap(efserr.CryptoInit, "namemap", err)
		}
		if _, exists := m.forward[candidate]; !exists {
			token = candidate
			break
		}
	}
	if token == "" {
		return "", efserr.New(efserr.IoFailure, "namemap", "could not allocate a unique token after repeated collisions")
	}

	m.forward[token] = logical
	m.reverse[logical] = token

	if err := m.saveLocked(); err != nil {
		delete(m.forward, token)
		delete(m.reverse, logical)
		return "", err
	}

	return token, nil
}

// LookupLogical resolves a token to its full stored logical path.
func (m *Map) LookupLogical(token string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	logical, ok := m.forward[token]
	return logical, ok
}

// LookupToken resolves a full logical path to its token.
func (m *Map) LookupToken(logical string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	token, ok := m.reverse[logical]
	return token, ok
}

// LogicalLeaf returns the final component of the logical path stored for
// token, or "" if the token is unknown.
func (m *Map) LogicalLeaf(token string) string {
	logical, ok := m.LookupLogical(token)
	if !ok {
		return ""
	}
	return path.Base(logical)
}

// saveLocked persists the document; callers must hold m.mu.
func (m *Map) saveLocked() error {
	if err := m.acquireLock(); err != nil {
		return err
	}
	defer m.releaseLock()

	raw, err := json.MarshalIndent(m.forward, "", "  ")
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "namemap", err)
	}

	f, err := m.fsys.OpenFile(m.path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "namemap", err).WithPath(m.path)
	}
	if _, err := f.Write(raw); err != nil {
		f.Close()
		return efserr.Wrap(efserr.IoFailure, "namemap", err).WithPath(m.path)
	}
	if err := f.Close(); err != nil {
		return efserr.Wrap(efserr.IoFailure, "namemap", err).WithPath(m.path)
	}

	sumFile, err := m.fsys.OpenFile(m.sumPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "namemap", err).WithPath(m.sumPath)
	}
	defer sumFile.Close()
	if _, err := sumFile.Write([]byte(checksum(raw))); err != nil {
		return efserr.Wrap(efserr.IoFailure, "namemap", err).WithPath(m.sumPath)
	}

	return nil
}

// acquireLock writes an advisory lock file carrying a UUID + pid. It does
// not block: this process is single-threaded, so the lock file is a
// cooperative signal for any second process sharing the installation, not
// a blocking primitive.
func (m *Map) acquireLock() error {
	token := uuid.New().String()
	f, err := m.fsys.OpenFile(m.lockPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "namemap", err).WithPath(m.lockPath)
	}
	defer f.Close()
	fmt.Fprintf(f, "%s pid=%d\n", token, os.Getpid())
	return nil
}

func (m *Map) releaseLock() {
	_ = m.fsys.Remove(m.lockPath)
}

func generateToken() (string, error) {
	buf := make([]byte, tokenLength)
	alphabetSize := big.NewInt(int64(len(tokenAlphabet)))
	for i := 0; i < tokenLength; i++ {
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		buf[i] = tokenAlphabet[n.Int64()]
	}
	return string(buf), nil
}
