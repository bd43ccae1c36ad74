package services

import (
	"encoding/hex"
	"strings"
)

// maxKeyLen is the S3 limit on object key length, in bytes.
const maxKeyLen = 1023

// KeyDerive maps a checksum and a requested filename to the storage key
// "<hex(checksum)>-<sanitized filename>". Every rune outside [A-Za-z0-9._-]
// becomes a single '_'. The filename part is cut so the key fits in
// maxKeyLen bytes.
//
// An empty filename is the one exception to that format: the key is the
// bare hex digest, with no trailing '-'.
func KeyDerive(checksum []byte, filename string) string {
	prefix := hex.EncodeToString(checksum)
	name := sanitizeFilename(filename)
	if name == "" {
		return prefix
	}
	if room := maxKeyLen - len(prefix) - 1; len(name) > room {
		name = name[:room]
	}
	return prefix + "-" + name
}

func sanitizeFilename(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if isKeyRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '.', r == '-', r == '_':
		return true
	}
	return false
}
