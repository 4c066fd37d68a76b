// Package users implements account bootstrap and lifecycle: generating a
// per-user symmetric key, laying out a user's home/personal/shared
// directories, and recording admin status alongside the key material.
package users

import (
	"crypto/rand"
	"encoding/json"
	"io"
	"os"
	"path"

	"github.com/absfs/absfs"
	"github.com/efs-io/efs/internal/blob"
	"github.com/efs-io/efs/internal/efsconfig"
	"github.com/efs-io/efs/internal/efserr"
	"github.com/efs-io/efs/internal/namemap"
	"github.com/efs-io/efs/internal/vpath"
)

// AdminUsername is the fixed administrator account created on Bootstrap.
const AdminUsername = "admin"

// seedDocument is the placeholder written into a brand new
// structure.json before any token has been allocated.
const seedDocument = `{"test":"123"}`

// Bootstrap performs first-run installation setup: creates every
// installation directory, seeds common/structure.json, and creates the
// admin account. Safe to call only when paths.Filesystem does not yet
// exist; callers should check that first.
func Bootstrap(fsys absfs.FileSystem, paths *efsconfig.Paths) error {
	dirs := []string{
		paths.Filesystem,
		paths.KeyDir,
		paths.PublicKeyDir,
		paths.PrivateKeyDir,
		paths.CommonDir,
		paths.SharedDir,
	}
	for _, dir := range dirs {
		if err := fsys.MkdirAll(dir, 0755); err != nil {
			return efserr.Wrap(efserr.IoFailure, "bootstrap", err).WithPath(dir)
		}
	}

	f, err := fsys.OpenFile(paths.StructurePath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "bootstrap", err).WithPath(paths.StructurePath)
	}
	if _, err := f.Write([]byte(seedDocument)); err != nil {
		f.Close()
		return efserr.Wrap(efserr.IoFailure, "bootstrap", err).WithPath(paths.StructurePath)
	}
	if err := f.Close(); err != nil {
		return efserr.Wrap(efserr.IoFailure, "bootstrap", err).WithPath(paths.StructurePath)
	}

	nm, err := namemap.Load(fsys, paths.StructurePath, paths.StructureLockPath, paths.StructureSumPath, nil)
	if err != nil {
		return err
	}

	return Create(fsys, paths, nm, AdminUsername, true)
}

// Exists reports whether username has a public-key marker file, mirroring
// doesUserExist's directory-listing check but as an existence test of one
// known path instead of scanning key/public_keys.
func Exists(fsys absfs.FileSystem, paths *efsconfig.Paths, username string) bool {
	f, err := fsys.Open(paths.PublicKeyPath(username))
	if err != nil {
		return false
	}
	f.Close()
	return true
}

// Create allocates username's home/personal/shared directories in the
// name map, generates a fresh symmetric key, and writes the key and
// marker files createInitFsForUser's Go equivalent would produce.
func Create(fsys absfs.FileSystem, paths *efsconfig.Paths, nm *namemap.Map, username string, isAdmin bool) error {
	if Exists(fsys, paths, username) {
		return efserr.Newf(efserr.Duplicate, "adduser", "user %s already exists", username).WithPath(username)
	}

	home := "/filesystem/" + username
	for _, logical := range []string{home, home + "/personal", home + "/shared"} {
		if _, err := nm.Allocate(logical); err != nil {
			return err
		}
		randomized, err := vpath.ToRandomized(nm, logical)
		if err != nil {
			return err
		}
		physicalDir := path.Join(paths.Root, randomized)
		if err := fsys.MkdirAll(physicalDir, 0755); err != nil {
			return efserr.Wrap(efserr.IoFailure, "adduser", err).WithPath(physicalDir)
		}
	}

	key := make([]byte, blob.KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return efserr.Wrap(efserr.CryptoInit, "adduser", err)
	}

	keyFile, err := fsys.OpenFile(paths.UserKeyPath(username), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "adduser", err).WithPath(paths.UserKeyPath(username))
	}
	if _, err := keyFile.Write(key); err != nil {
		keyFile.Close()
		return efserr.Wrap(efserr.IoFailure, "adduser", err).WithPath(paths.UserKeyPath(username))
	}
	if err := keyFile.Close(); err != nil {
		return efserr.Wrap(efserr.IoFailure, "adduser", err).WithPath(paths.UserKeyPath(username))
	}

	meta, err := json.Marshal(map[string]bool{"admin": isAdmin})
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "adduser", err)
	}
	if err := writeMarker(fsys, paths.PublicKeyPath(username), meta); err != nil {
		return err
	}
	if err := writeMarker(fsys, paths.PrivateKeyPath(username), nil); err != nil {
		return err
	}

	return nil
}

func writeMarker(fsys absfs.FileSystem, markerPath string, contents []byte) error {
	f, err := fsys.OpenFile(markerPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return efserr.Wrap(efserr.IoFailure, "adduser", err).WithPath(markerPath)
	}
	defer f.Close()
	if len(contents) > 0 {
		if _, err := f.Write(contents); err != nil {
			return efserr.Wrap(efserr.IoFailure, "adduser", err).WithPath(markerPath)
		}
	}
	return nil
}

// LoadKey reads username's raw symmetric key from common/<username>_key.
func LoadKey(fsys absfs.FileSystem, paths *efsconfig.Paths, username string) ([]byte, error) {
	f, err := fsys.Open(paths.UserKeyPath(username))
	if err != nil {
		return nil, efserr.Wrap(efserr.NotFound, "login", err).WithPath(paths.UserKeyPath(username))
	}
	defer f.Close()

	key := make([]byte, blob.KeySize)
	if _, err := io.ReadFull(f, key); err != nil {
		return nil, efserr.Wrap(efserr.IntegrityFailure, "login", err).WithPath(paths.UserKeyPath(username))
	}
	return key, nil
}

// IsAdmin reports whether username's public-key marker records admin
// status, defaulting to false if the marker is missing or unreadable.
func IsAdmin(fsys absfs.FileSystem, paths *efsconfig.Paths, username string) bool {
	f, err := fsys.Open(paths.PublicKeyPath(username))
	if err != nil {
		return false
	}
	defer f.Close()

	var meta map[string]bool
	if err := json.NewDecoder(f).Decode(&meta); err != nil {
		return false
	}
	return meta["admin"]
}
