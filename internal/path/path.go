// Package path normalizes slash separated paths and keeps the current
// working directory used to resolve relative names.
package path

// Separator is the only path separator understood by the file system.
const Separator = '/'

// Root is the normalized root path.
const Root = "/"

// IsAbs reports whether p starts at the root.
func IsAbs(p string) bool {
	return len(p) > 0 && p[0] == Separator
}

// Normalize returns the canonical form of p. For absolute input the result
// starts with "/", contains no "." or ".." components, no empty components
// and no trailing separator unless it is the root itself. ".." at the root
// is a no-op, so "/../foo" yields "/foo". Relative input stays relative and
// ".." that would climb above its start is dropped; an empty relative result
// is ".".
func Normalize(p string) string {
	if p == Root {
		return p
	}
	return string(NormalizeBytes([]byte(p)))
}

// NormalizeBytes is the buffer form of Normalize. It rewrites b in place and
// returns the normalized prefix of b; it allocates only when b is empty and
// has no capacity for the "." result.
func NormalizeBytes(b []byte) []byte {
	n := len(b)
	if n == 0 {
		if cap(b) > 0 {
			b = b[:1]
			b[0] = '.'
			return b
		}
		return []byte{'.'}
	}

	// The write index never passes the read index: every separator written
	// corresponds to at least one separator consumed.
	start := 0
	if b[0] == Separator {
		start = 1
	}
	r, w := start, start
	for r < n {
		switch {
		case b[r] == Separator:
			r++
		case b[r] == '.' && (r+1 == n || b[r+1] == Separator):
			r++
		case b[r] == '.' && b[r+1] == '.' && (r+2 == n || b[r+2] == Separator):
			r += 2
			if w > start {
				w--
				for w > start && b[w] != Separator {
					w--
				}
			}
		default:
			if w != start {
				b[w] = Separator
				w++
			}
			for ; r < n && b[r] != Separator; r++ {
				b[w] = b[r]
				w++
			}
		}
	}

	if w == 0 {
		b[0] = '.'
		w = 1
	}
	return b[:w]
}
