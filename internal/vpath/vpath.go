// Package vpath implements component-by-component translation between
// plaintext logical paths and the randomized token paths actually stored
// on disk, plus the "." / ".." bookkeeping a shell needs to resolve
// relative input against a virtual working directory.
//
// Every logical and randomized path handled here begins with the literal,
// never-randomized "filesystem" component: a logical path looks like
// /filesystem/alice/personal/notes.txt, and its randomized counterpart
// looks like /filesystem/<tok1>/<tok2>/<tok3>. Each level is keyed in the
// name map by its own cumulative logical path, one component at a time,
// so a deeper component can't be resolved without first resolving every
// ancestor above it.
package vpath

import (
	"path"
	"strings"

	"github.com/efs-io/efs/internal/efserr"
	"github.com/efs-io/efs/internal/namemap"
)

// Root is the literal, unrandomized top-level component every logical and
// randomized path begins with.
const Root = "filesystem"

// Resolver looks up the token for a logical path, or the logical path for
// a token. *namemap.Map satisfies this; tests can supply a fake.
type Resolver interface {
	LookupToken(logical string) (string, bool)
	LookupLogical(token string) (string, bool)
}

// Normalize resolves input (absolute or relative to pwd) into a clean
// logical path rooted at /filesystem, collapsing "." and ".." components
// the way a shell's cd builtin does, without touching the filesystem.
// pwd must already be a clean, /filesystem-rooted logical path.
func Normalize(pwd, input string) string {
	var base []string
	if path.IsAbs(input) {
		base = []string{Root}
	} else {
		base = splitClean(pwd)
		if len(base) == 0 {
			base = []string{Root}
		}
	}

	for _, part := range strings.Split(input, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(base) > 1 {
				base = base[:len(base)-1]
			}
		default:
			base = append(base, part)
		}
	}

	return "/" + strings.Join(base, "/")
}

func splitClean(p string) []string {
	var out []string
	for _, part := range strings.Split(p, "/") {
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ToRandomized translates a clean logical path (beginning with the
// literal "filesystem" component) into the randomized path stored on
// disk, resolving the token for every ancestor's cumulative logical path
// in turn. Every ancestor past the root must already be present in the
// name map, or ToRandomized fails with efserr.NotFound.
func ToRandomized(r Resolver, logical string) (string, error) {
	components := splitClean(logical)
	if len(components) == 0 || components[0] != Root {
		return "", efserr.Newf(efserr.BadInput, "vpath", "logical path %q must begin with /%s", logical, Root)
	}

	randomized := []string{Root}
	cumulative := "/" + Root
	for _, part := range components[1:] {
		cumulative = cumulative + "/" + part
		token, ok := r.LookupToken(cumulative)
		if !ok {
			return "", efserr.Newf(efserr.NotFound, "vpath", "%s does not exist", cumulative).WithPath(cumulative)
		}
		randomized = append(randomized, token)
	}

	return "/" + strings.Join(randomized, "/"), nil
}

// ToLogical translates a randomized on-disk path back to its plaintext
// logical path. Because the name map stores each token's complete logical
// path (not just its leaf name), only the deepest component needs a
// lookup.
func ToLogical(r Resolver, randomized string) (string, error) {
	components := splitClean(randomized)
	if len(components) == 0 || components[0] != Root {
		return "", efserr.Newf(efserr.BadInput, "vpath", "randomized path %q must begin with /%s", randomized, Root)
	}
	if len(components) == 1 {
		return "/" + Root, nil
	}

	leafToken := components[len(components)-1]
	logical, ok := r.LookupLogical(leafToken)
	if !ok {
		return "", efserr.Newf(efserr.NotFound, "vpath", "token %s is not mapped", leafToken).WithPath(randomized)
	}
	return logical, nil
}

// ParentLogical returns the logical path of logical's containing
// directory (/filesystem for a direct child of the root).
func ParentLogical(logical string) string {
	dir := path.Dir(logical)
	if dir == "." || dir == "/" {
		return "/" + Root
	}
	return dir
}

// namemap.Map is the concrete Resolver used outside of tests; referenced
// here only to keep the import meaningful for readers navigating from the
// name map package to its consumer.
var _ Resolver = (*namemap.Map)(nil)
