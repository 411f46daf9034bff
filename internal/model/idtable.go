package model

// IDTable maintains the bijection between infohash and the stable
// integer RpcId clients use to refer to a torrent across restarts. It
// is engine-owned: only the Engine Thread (and the Snapshot Builder,
// which runs synchronously on it) may call its methods.
type IDTable struct {
	hashToID map[InfoHash]int64
	idToHash map[int64]InfoHash
	next     int64
}

// NewIDTable returns an empty table whose next assigned id is 1.
func NewIDTable() *IDTable {
	return &IDTable{
		hashToID: make(map[InfoHash]int64),
		idToHash: make(map[int64]InfoHash),
		next:     1,
	}
}

// Restore seeds the table from persisted (hash, id) pairs and advances
// the counter past the highest persisted id, per the restart invariant
// in spec §9 ("the counter must be restored to max(persisted_ids)+1").
func (t *IDTable) Restore(pairs map[InfoHash]int64) {
	for h, id := range pairs {
		t.hashToID[h] = id
		t.idToHash[id] = h
		if id >= t.next {
			t.next = id + 1
		}
	}
}

// IDFor returns the RpcId for hash, assigning a fresh one on first
// observation. The returned bool is true when a new id was assigned.
func (t *IDTable) IDFor(h InfoHash) (id int64, assigned bool) {
	if id, ok := t.hashToID[h]; ok {
		return id, false
	}
	id = t.next
	t.next++
	t.hashToID[h] = id
	t.idToHash[id] = h
	return id, true
}

// Lookup returns the id already assigned to h, if any.
func (t *IDTable) Lookup(h InfoHash) (int64, bool) {
	id, ok := t.hashToID[h]
	return id, ok
}

// HashFor returns the hash for a previously assigned id.
func (t *IDTable) HashFor(id int64) (InfoHash, bool) {
	h, ok := t.idToHash[id]
	return h, ok
}

// Forget removes the mapping for h. Per spec §3, the id is not reused
// until process restart — Forget never rewinds the counter.
func (t *IDTable) Forget(h InfoHash) {
	id, ok := t.hashToID[h]
	if !ok {
		return
	}
	delete(t.hashToID, h)
	delete(t.idToHash, id)
}

// Hashes returns every hash currently tracked.
func (t *IDTable) Hashes() []InfoHash {
	out := make([]InfoHash, 0, len(t.hashToID))
	for h := range t.hashToID {
		out = append(out, h)
	}
	return out
}
