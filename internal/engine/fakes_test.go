package engine

import (
	"context"

	"github.com/tinytorrent/tinytorrentd/internal/model"
	"github.com/tinytorrent/tinytorrentd/internal/session"
)

// fakeHandle is a minimal session.Handle double for exercising
// Commands without a live anacrolix/torrent session.
type fakeHandle struct {
	hash   model.InfoHash
	stats  session.HandleStats
	paused bool

	verified   bool
	reannounced bool
	wantedFile  int
	wantedVal   bool
	sequential  bool
	superSeed   bool
	queuePos    int
	trackers    []string
	down, up    model.RateLimit
}

func (h *fakeHandle) InfoHash() model.InfoHash   { return h.hash }
func (h *fakeHandle) Stats() session.HandleStats { return h.stats }
func (h *fakeHandle) Pause()                     { h.paused = true }
func (h *fakeHandle) Resume()                    { h.paused = false }
func (h *fakeHandle) IsPaused() bool             { return h.paused }
func (h *fakeHandle) SetSequential(enabled bool) { h.sequential = enabled }
func (h *fakeHandle) SetSuperSeeding(enabled bool) { h.superSeed = enabled }
func (h *fakeHandle) VerifyData()                { h.verified = true }
func (h *fakeHandle) Reannounce()                { h.reannounced = true }
func (h *fakeHandle) SetFileWanted(fileIndex int, wanted bool) {
	h.wantedFile, h.wantedVal = fileIndex, wanted
}
func (h *fakeHandle) SetQueuePosition(pos int) { h.queuePos = pos }
func (h *fakeHandle) SetRateLimits(down, up model.RateLimit) {
	h.down, h.up = down, up
}
func (h *fakeHandle) AddTrackers(urls []string)     { h.trackers = append(h.trackers, urls...) }
func (h *fakeHandle) RemoveTrackers(urls []string)  {}
func (h *fakeHandle) ReplaceTrackers(urls []string) { h.trackers = urls }

// fakeBackend is a minimal session.Backend double. It tracks handles
// in insertion order and replays a canned error for add operations
// when addErr is set, enough to exercise Commands' error mapping
// without a real peer-wire session.
type fakeBackend struct {
	handles map[model.InfoHash]*fakeHandle
	order   []model.InfoHash

	addErr    error
	moveErr   error
	removeErr error

	moved         map[model.InfoHash]string
	removed       []model.InfoHash
	resumeSaves   []model.InfoHash
	resumeApplied map[model.InfoHash][]byte
	ipFilter      []session.IPFilterRule
	appliedPacks  []session.SettingsPack
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		handles: make(map[model.InfoHash]*fakeHandle),
		moved:   make(map[model.InfoHash]string),
	}
}

func (b *fakeBackend) Start(ctx context.Context) error { return nil }
func (b *fakeBackend) Stop(ctx context.Context) error  { return nil }

func (b *fakeBackend) addHandle(hash model.InfoHash) *fakeHandle {
	h := &fakeHandle{hash: hash}
	b.handles[hash] = h
	b.order = append(b.order, hash)
	return h
}

func (b *fakeBackend) AddTorrentMagnet(ctx context.Context, magnetURI string) (model.InfoHash, error) {
	if b.addErr != nil {
		return model.InfoHash{}, b.addErr
	}
	hash := hashFromString(magnetURI)
	b.addHandle(hash)
	return hash, nil
}

func (b *fakeBackend) AddTorrentMetainfo(ctx context.Context, blob []byte) (model.InfoHash, error) {
	if b.addErr != nil {
		return model.InfoHash{}, b.addErr
	}
	hash := hashFromString(string(blob))
	b.addHandle(hash)
	return hash, nil
}

func (b *fakeBackend) AddTorrentInfoHash(ctx context.Context, hash model.InfoHash) error {
	if b.addErr != nil {
		return b.addErr
	}
	b.addHandle(hash)
	return nil
}

func (b *fakeBackend) RemoveTorrent(hash model.InfoHash, deleteData bool) error {
	if b.removeErr != nil {
		return b.removeErr
	}
	delete(b.handles, hash)
	b.removed = append(b.removed, hash)
	return nil
}

func (b *fakeBackend) TorrentHandles() []session.Handle {
	out := make([]session.Handle, 0, len(b.order))
	for _, hash := range b.order {
		if h, ok := b.handles[hash]; ok {
			out = append(out, h)
		}
	}
	return out
}

func (b *fakeBackend) Handle(hash model.InfoHash) (session.Handle, bool) {
	h, ok := b.handles[hash]
	return h, ok
}

func (b *fakeBackend) MoveStorage(hash model.InfoHash, newPath string) error {
	if b.moveErr != nil {
		return b.moveErr
	}
	b.moved[hash] = newPath
	return nil
}

func (b *fakeBackend) ApplySettings(pack session.SettingsPack) error {
	b.appliedPacks = append(b.appliedPacks, pack)
	return nil
}

func (b *fakeBackend) SetIPFilter(rules []session.IPFilterRule) error {
	b.ipFilter = rules
	return nil
}

func (b *fakeBackend) RequestSaveResumeData(hash model.InfoHash) {
	b.resumeSaves = append(b.resumeSaves, hash)
}

func (b *fakeBackend) ApplyResumeData(hash model.InfoHash, data []byte) error {
	if b.resumeApplied == nil {
		b.resumeApplied = make(map[model.InfoHash][]byte)
	}
	b.resumeApplied[hash] = data
	return nil
}

func (b *fakeBackend) WriteSessionState() ([]byte, error) { return nil, nil }

func (b *fakeBackend) PopAlerts() []session.Alert { return nil }

func hashFromString(s string) model.InfoHash {
	var h model.InfoHash
	copy(h[:], s)
	return h
}
