// Package checksum computes release artifact digests and writes the
// checksum manifest published next to them.
package checksum

import (
	"crypto/md5"  //nolint:gosec // offered for compatibility with legacy consumers
	"crypto/sha1" //nolint:gosec // offered for compatibility with legacy consumers
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/blake2s"
	"golang.org/x/crypto/sha3"

	"github.com/iamd3vil/rlsr/errors"
	"github.com/iamd3vil/rlsr/fs"
)

// Algorithm names accepted in checksum.algorithm.
const (
	SHA256  = "sha256"
	SHA512  = "sha512"
	SHA3256 = "sha3_256"
	SHA3512 = "sha3_512"
	BLAKE2b = "blake2b"
	BLAKE2s = "blake2s"
	BLAKE3  = "blake3"
	MD5     = "md5"
	SHA1    = "sha1"
)

var constructors = map[string]func() hash.Hash{
	SHA256:  sha256.New,
	SHA512:  sha512.New,
	SHA3256: sha3.New256,
	SHA3512: sha3.New512,
	BLAKE2b: func() hash.Hash {
		// A nil key never fails.
		h, _ := blake2b.New512(nil)
		return h
	},
	BLAKE2s: func() hash.Hash {
		h, _ := blake2s.New256(nil)
		return h
	},
	BLAKE3: func() hash.Hash { return blake3.New() },
	MD5:    md5.New,
	SHA1:   sha1.New,
}

// Algorithm is a named digest constructor.
type Algorithm struct {
	name string
	new  func() hash.Hash
}

// Name returns the configuration name of the algorithm.
func (a Algorithm) Name() string { return a.name }

// New returns a fresh hash.Hash for the algorithm.
func (a Algorithm) New() hash.Hash { return a.new() }

// Lookup resolves an algorithm by its configuration name.
func Lookup(name string) (Algorithm, error) {
	ctor, ok := constructors[name]
	if !ok {
		return Algorithm{}, fmt.Errorf("unsupported checksum algorithm %q (supported: %v)", name, Algorithms())
	}
	return Algorithm{name: name, new: ctor}, nil
}

// Algorithms lists the supported algorithm names in sorted order.
func Algorithms() []string {
	names := make([]string, 0, len(constructors))
	for name := range constructors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Sum returns the lowercase hex digest of everything read from r.
func (a Algorithm) Sum(r io.Reader) (string, error) {
	h := a.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// SumFile digests the file at path on fsys.
func (a Algorithm) SumFile(fsys fs.Filesystem, path string) (string, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodePackagingFailed, "failed to open file for checksum",
			map[string]interface{}{"path": path})
	}
	defer func() { _ = f.Close() }()

	digest, err := a.Sum(f)
	if err != nil {
		return "", errors.WrapWithContext(err, errors.CodePackagingFailed, "failed to compute checksum",
			map[string]interface{}{"path": path, "algorithm": a.name})
	}
	return digest, nil
}
