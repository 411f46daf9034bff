// Package model holds the data types shared across the engine: torrent
// records, settings, the published snapshot, history buckets and the
// on-disk persisted torrent record.
package model

import (
	"encoding/hex"
	"errors"
)

// InfoHash is the 20-byte SHA-1 identity of a torrent.
type InfoHash [20]byte

// ErrInvalidInfoHash is returned when a hex string does not decode to
// exactly 20 bytes.
var ErrInvalidInfoHash = errors.New("model: invalid info hash")

// ParseInfoHash decodes a 40-character hex string into an InfoHash.
func ParseInfoHash(s string) (InfoHash, error) {
	var h InfoHash
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != len(h) {
		return h, ErrInvalidInfoHash
	}
	copy(h[:], b)
	return h, nil
}

// String returns the lowercase hex encoding of the hash.
func (h InfoHash) String() string {
	return hex.EncodeToString(h[:])
}

// IsZero reports whether the hash is all-zero, used to detect handles
// whose metadata has not arrived yet.
func (h InfoHash) IsZero() bool {
	return h == InfoHash{}
}
