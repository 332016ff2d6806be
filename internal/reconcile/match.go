package reconcile

import "strings"

// splitName splits a filename into base and extension, ignoring any leading
// path components. "photos/cat.final.JPG" -> ("cat.final", "JPG").
func splitName(name string) (base, ext string) {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		return name[:i], name[i+1:]
	}
	return name, ""
}

// matches reports whether a record filename (base, ext) belongs to a pending
// entry (itemBase, itemExt). The extension must match case-insensitively. The
// base must be identical, or be the entry base plus a single "-<digits>"
// suffix, because storage deduplicates colliding filenames by appending -1,
// -2, and so on.
func matches(base, ext, itemBase, itemExt string) bool {
	if !strings.EqualFold(ext, itemExt) {
		return false
	}
	if base == itemBase {
		return true
	}
	rest, ok := strings.CutPrefix(base, itemBase+"-")
	if !ok || rest == "" {
		return false
	}
	for _, r := range rest {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
