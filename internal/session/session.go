// Package session carries the per-login state the command surface acts
// on: which user is logged in, their symmetric key, and their current
// virtual working directory.
//
// The virtual working directory is tracked explicitly on this struct
// rather than piggy-backed on the process's real working directory,
// since one process may in principle serve more than one session.
package session

// Session is the state a logged-in REPL operates against.
type Session struct {
	Username string
	IsAdmin  bool
	Key      []byte

	// RootLogical is the logical path this user is jailed to
	// (/filesystem/<username>) — admin sessions are jailed to the whole
	// tree, /filesystem, instead.
	RootLogical string
	// PersonalLogical is /filesystem/<username>/personal, the only
	// subtree this user may write to.
	PersonalLogical string
	// SharedLogical is /filesystem/<username>/shared.
	SharedLogical string

	// PWD is the current virtual working directory, always a clean
	// logical path rooted at /filesystem.
	PWD string
}

// New builds the session for username, rooted the way internal/users
// lays out a new account's home directory under /filesystem.
func New(username string, isAdmin bool, key []byte) *Session {
	home := "/filesystem/" + username
	root := home
	if isAdmin {
		root = "/filesystem"
	}
	return &Session{
		Username:        username,
		IsAdmin:         isAdmin,
		Key:             key,
		RootLogical:     root,
		PersonalLogical: home + "/personal",
		SharedLogical:   home + "/shared",
		PWD:             root,
	}
}
