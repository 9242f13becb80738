package server

import "strings"

// vpath is a normalized virtual path, stored as its segments.
// The zero value is the virtual root "/".
type vpath []string

// apply walks arg over p and returns the result. An absolute arg starts
// from the root; "" and "." are no-ops and ".." drops the last segment,
// never going above the root. p itself is not modified.
func (p vpath) apply(arg string) vpath {
	out := make(vpath, 0, len(p)+4)
	if !strings.HasPrefix(arg, "/") {
		out = append(out, p...)
	}
	for _, seg := range strings.Split(arg, "/") {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	return out
}

// parent returns p without its last segment.
func (p vpath) parent() vpath {
	if len(p) == 0 {
		return p
	}
	return append(vpath(nil), p[:len(p)-1]...)
}

// String renders p as an absolute virtual path.
func (p vpath) String() string {
	return "/" + strings.Join(p, "/")
}

// resolve maps a client path argument to a path inside the user's root.
// Relative paths are taken from the working directory.
func (s *session) resolve(arg string) string {
	return s.cwd.apply(arg).String()
}
