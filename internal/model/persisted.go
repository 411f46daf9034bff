package model

import "fmt"

// PersistedTorrent is the on-disk record for a torrent, per spec §3/§6.
// Exactly one of MagnetURI, MetainfoBlob, MetadataFilePath is present.
type PersistedTorrent struct {
	InfoHash InfoHash

	MagnetURI        string
	MetainfoBlob     []byte
	MetadataFilePath string

	SavePath string
	Paused   bool
	Labels   []string
	AddedAt  int64 // unix seconds
	RpcID    int64

	ResumeData []byte
}

// Validate enforces the "exactly one source" invariant from spec §3.
func (p PersistedTorrent) Validate() error {
	n := 0
	if p.MagnetURI != "" {
		n++
	}
	if len(p.MetainfoBlob) > 0 {
		n++
	}
	if p.MetadataFilePath != "" {
		n++
	}
	if n != 1 {
		return fmt.Errorf("model: persisted torrent must have exactly one of magnet/metainfo/metadata-path, got %d", n)
	}
	return nil
}
