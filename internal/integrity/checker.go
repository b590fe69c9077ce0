// Package integrity validates downloaded files against expected size and
// content hash. Hashes are hex SHA-1 (40 chars) or SHA-256 (64 chars).
package integrity

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	"github.com/minelauncher/mcfetch/internal/utils"
)

const readBufferSize = 64 * 1024

func newHasher(expected string) (hash.Hash, error) {
	switch len(expected) {
	case sha1.Size * 2:
		return sha1.New(), nil
	case sha256.Size * 2:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("unsupported hash length %d", len(expected))
	}
}

// HashFile returns the lower-case hex digest of path using the algorithm
// implied by the length of like ("" means SHA-1).
func HashFile(path, like string) (string, error) {
	if like == "" {
		like = strings.Repeat("0", sha1.Size*2)
	}
	h, err := newHasher(like)
	if err != nil {
		return "", err
	}
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.CopyBuffer(h, f, make([]byte, readBufferSize)); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func HashBytes(data []byte, like string) (string, error) {
	if like == "" {
		like = strings.Repeat("0", sha1.Size*2)
	}
	h, err := newHasher(like)
	if err != nil {
		return "", err
	}
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks path against minSize and, when set, expectedHash.
// Mismatches are reported as *utils.IntegrityError.
func Verify(path string, minSize int64, expectedHash string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &utils.IntegrityError{Path: path, Reason: err.Error()}
	}
	if info.IsDir() {
		return &utils.IntegrityError{Path: path, Reason: "is a directory"}
	}
	if info.Size() < minSize {
		return &utils.IntegrityError{
			Path:     path,
			Reason:   "file too small",
			Expected: fmt.Sprintf(">= %d bytes", minSize),
			Actual:   fmt.Sprintf("%d bytes", info.Size()),
		}
	}
	if expectedHash == "" {
		return nil
	}
	actual, err := HashFile(path, expectedHash)
	if err != nil {
		return &utils.IntegrityError{Path: path, Reason: fmt.Sprintf("hashing: %v", err)}
	}
	if !strings.EqualFold(actual, expectedHash) {
		return &utils.IntegrityError{Path: path, Reason: "hash mismatch", Expected: strings.ToLower(expectedHash), Actual: actual}
	}
	return nil
}

// VerifyBytes applies the same checks to an in-memory document.
func VerifyBytes(name string, data []byte, minSize int64, expectedHash string) error {
	if int64(len(data)) < minSize {
		return &utils.IntegrityError{
			Path:     name,
			Reason:   "document too small",
			Expected: fmt.Sprintf(">= %d bytes", minSize),
			Actual:   fmt.Sprintf("%d bytes", len(data)),
		}
	}
	if expectedHash == "" {
		return nil
	}
	actual, err := HashBytes(data, expectedHash)
	if err != nil {
		return &utils.IntegrityError{Path: name, Reason: err.Error()}
	}
	if !strings.EqualFold(actual, expectedHash) {
		return &utils.IntegrityError{Path: name, Reason: "hash mismatch", Expected: strings.ToLower(expectedHash), Actual: actual}
	}
	return nil
}

// Valid reports whether path already satisfies the job, for the skip check.
func Valid(path string, minSize int64, expectedHash string) bool {
	return Verify(path, minSize, expectedHash) == nil
}
