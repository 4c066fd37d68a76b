// Package jail implements the authorization checks every command handler
// needs: is a resolved logical path inside the caller's permitted root,
// and does a command argument contain characters the shell must reject
// outright.
//
// The jail check is a pure string-prefix test over the explicit virtual
// path carried on internal/session, rather than a comparison against the
// host process's real working directory — the session's notion of "where
// the user is" is independent of the process's own cwd.
package jail

import "strings"

// Contains reports whether logical is root itself or a descendant of
// root. Both must already be clean, absolute, "/"-separated paths.
func Contains(root, logical string) bool {
	if logical == root {
		return true
	}
	prefix := root
	if prefix != "/" {
		prefix += "/"
	}
	return strings.HasPrefix(logical, prefix)
}

// forbiddenChars rejects backticks in command arguments. This shell
// never passes arguments to a subprocess itself, but the filter guards
// any caller embedding it behind another process boundary that might.
const forbiddenChars = "`"

// HasForbiddenChars reports whether arg contains a character the shell
// must reject before it reaches any command handler.
func HasForbiddenChars(arg string) bool {
	return strings.ContainsAny(arg, forbiddenChars)
}
