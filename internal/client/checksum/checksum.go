// Package checksum computes the content digests the client sends as object
// checksums.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
)

// Supported algorithm names.
const (
	SHA256  = "sha256"
	BLAKE2b = "blake2b"
	BLAKE3  = "blake3"
)

// New returns a hash for algo. blake2b is the 512-bit variant; the others
// produce 32 bytes.
func New(algo string) (hash.Hash, error) {
	switch strings.ToLower(algo) {
	case "", SHA256:
		return sha256.New(), nil
	case BLAKE2b:
		return blake2b.New512(nil)
	case BLAKE3:
		return blake3.New(), nil
	default:
		return nil, fmt.Errorf("unsupported checksum algorithm %q", algo)
	}
}

// Reader digests r and returns the hex checksum and the byte count.
func Reader(algo string, r io.Reader) (string, int64, error) {
	h, err := New(algo)
	if err != nil {
		return "", 0, err
	}
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, fmt.Errorf("read: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// File digests the file at path.
func File(algo, path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return Reader(algo, f)
}
