// Package efsconfig resolves the EFS installation layout relative to a
// root directory as a typed value, rather than composing the same
// subdirectory paths ad hoc at every call site.
package efsconfig

import "path"

// Paths is the resolved installation layout rooted at Root.
type Paths struct {
	Root              string
	Filesystem        string // Root/filesystem
	KeyDir            string // Root/key
	PublicKeyDir      string // Root/key/public_keys
	PrivateKeyDir     string // Root/key/private_keys
	CommonDir         string // Root/common
	SharedDir         string // Root/shared
	StructurePath     string // Root/common/structure.json
	StructureLockPath string // Root/common/structure.json.lock
	StructureSumPath  string // Root/common/structure.json.sum
}

// New resolves every installation path from root.
func New(root string) *Paths {
	common := path.Join(root, "common")
	return &Paths{
		Root:              root,
		Filesystem:        path.Join(root, "filesystem"),
		KeyDir:            path.Join(root, "key"),
		PublicKeyDir:      path.Join(root, "key", "public_keys"),
		PrivateKeyDir:     path.Join(root, "key", "private_keys"),
		CommonDir:         common,
		SharedDir:         path.Join(root, "shared"),
		StructurePath:     path.Join(common, "structure.json"),
		StructureLockPath: path.Join(common, "structure.json.lock"),
		StructureSumPath:  path.Join(common, "structure.json.sum"),
	}
}

// UserKeyPath returns the path to a user's raw symmetric key file.
func (p *Paths) UserKeyPath(username string) string {
	return path.Join(p.CommonDir, username+"_key")
}

// PublicKeyPath returns the path used only to test existence of a user.
func (p *Paths) PublicKeyPath(username string) string {
	return path.Join(p.PublicKeyDir, username+".pub")
}

// PrivateKeyPath returns the path to a user's private-key marker file.
func (p *Paths) PrivateKeyPath(username string) string {
	return path.Join(p.PrivateKeyDir, username+".priv")
}
