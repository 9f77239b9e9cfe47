package upload

import (
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// maxNameLen caps the sanitized filename portion of a storage key.
const maxNameLen = 128

// KeyFunc derives a storage key from the caller's original filename.
type KeyFunc func(originalName string) string

// NewKey returns "<uuid>_<sanitized name>". The random v4 UUID carries the
// uniqueness; the name suffix is only there for operators and to keep the
// extension.
func NewKey(originalName string) string {
	return uuid.NewString() + "_" + SanitizeName(originalName)
}

// SanitizeName reduces an arbitrary client-supplied filename to a safe object
// key segment made of [A-Za-z0-9._-].
func SanitizeName(name string) string {
	// Clients on Windows send backslash separated paths.
	name = strings.ReplaceAll(name, `\`, "/")
	name = filepath.Base(name)

	var b strings.Builder
	b.Grow(len(name))
	lastUnderscore := false
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isKeyByte(c) {
			b.WriteByte(c)
			lastUnderscore = c == '_'
			continue
		}
		if !lastUnderscore {
			b.WriteByte('_')
			lastUnderscore = true
		}
	}

	clean := strings.TrimLeft(b.String(), "._")
	if clean == "" {
		return "file"
	}
	return truncateName(clean, maxNameLen)
}

// truncateName shortens name to max bytes, keeping the extension when it is
// reasonably short.
func truncateName(name string, max int) string {
	if len(name) <= max {
		return name
	}
	ext := filepath.Ext(name)
	if len(ext) >= max/2 {
		return name[:max]
	}
	return name[:max-len(ext)] + ext
}

func isKeyByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '.', c == '-', c == '_':
		return true
	}
	return false
}
