package model

import "testing"

func TestIDTableAssignsMonotonically(t *testing.T) {
	tbl := NewIDTable()
	var hashes []InfoHash
	for i := 0; i < 5; i++ {
		var h InfoHash
		h[0] = byte(i + 1)
		hashes = append(hashes, h)
	}

	seen := make(map[int64]bool)
	for _, h := range hashes {
		id, assigned := tbl.IDFor(h)
		if !assigned {
			t.Fatalf("expected first observation to assign a new id")
		}
		if seen[id] {
			t.Fatalf("id %d reused", id)
		}
		seen[id] = true
	}

	// Re-observing returns the same, stable id.
	for i, h := range hashes {
		id, assigned := tbl.IDFor(h)
		if assigned {
			t.Fatalf("expected stable id on re-observation")
		}
		if id != int64(i+1) {
			t.Fatalf("expected id %d, got %d", i+1, id)
		}
	}
}

func TestIDTableRestoreAdvancesCounterPastMax(t *testing.T) {
	tbl := NewIDTable()
	var h1, h2 InfoHash
	h1[0] = 1
	h2[0] = 2
	tbl.Restore(map[InfoHash]int64{h1: 5, h2: 12})

	var h3 InfoHash
	h3[0] = 3
	id, assigned := tbl.IDFor(h3)
	if !assigned || id != 13 {
		t.Fatalf("expected new id 13, got %d (assigned=%v)", id, assigned)
	}
}

func TestIDTableForgetNeverReusesID(t *testing.T) {
	tbl := NewIDTable()
	var h1, h2 InfoHash
	h1[0] = 1
	h2[0] = 2

	id1, _ := tbl.IDFor(h1)
	tbl.Forget(h1)
	id2, _ := tbl.IDFor(h2)

	if id2 == id1 {
		t.Fatalf("forgotten id %d must not be reused within the same process", id1)
	}
}

func TestRevisionMonotonic(t *testing.T) {
	tr := &Torrent{}
	last := tr.Revision
	for i := 0; i < 10; i++ {
		tr.BumpRevision()
		if tr.Revision <= last {
			t.Fatalf("revision did not strictly increase: %d -> %d", last, tr.Revision)
		}
		last = tr.Revision
	}
}

func TestETA(t *testing.T) {
	cases := []struct {
		totalWanted, totalWantedDone, rate, want int64
	}{
		{1000, 0, 0, -1},
		{1000, 0, -5, -1},
		{1000, 500, 100, 5},
		{1000, 999, 10, 1},
		{1000, 1000, 10, 0},
		{1000, 1500, 10, 0}, // done exceeds wanted: clamp remaining to 0
	}
	for _, c := range cases {
		got := ETA(c.totalWanted, c.totalWantedDone, c.rate)
		if got != c.want {
			t.Errorf("ETA(%d, %d, %d) = %d, want %d", c.totalWanted, c.totalWantedDone, c.rate, got, c.want)
		}
	}
}

func TestRatio(t *testing.T) {
	if got := Ratio(10, 0); got != 0 {
		t.Errorf("Ratio with zero downloaded = %v, want 0", got)
	}
	if got := Ratio(5, 10); got != 0.5 {
		t.Errorf("Ratio(5, 10) = %v, want 0.5", got)
	}
}

func TestTransmissionStatus(t *testing.T) {
	if got := TransmissionStatus(StateSeeding, true); got != 0 {
		t.Errorf("paused torrent must report status 0 regardless of state, got %d", got)
	}
	if got := TransmissionStatus(StateDownloading, false); got != 4 {
		t.Errorf("downloading status = %d, want 4", got)
	}
	if got := TransmissionStatus(StateSeeding, false); got != 6 {
		t.Errorf("seeding status = %d, want 6", got)
	}
	if got := TransmissionStatus(StateUnknown, false); got != 0 {
		t.Errorf("unknown state status = %d, want 0", got)
	}
}

func TestAlignBucketTimestamp(t *testing.T) {
	if got := AlignBucketTimestamp(125, 60); got != 120 {
		t.Errorf("AlignBucketTimestamp(125, 60) = %d, want 120", got)
	}
	if got := AlignBucketTimestamp(60, 60); got != 60 {
		t.Errorf("AlignBucketTimestamp(60, 60) = %d, want 60", got)
	}
}

func TestPersistedTorrentValidate(t *testing.T) {
	p := PersistedTorrent{MagnetURI: "magnet:?xt=urn:btih:abc"}
	if err := p.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	p2 := PersistedTorrent{}
	if err := p2.Validate(); err == nil {
		t.Fatalf("expected error for zero sources")
	}

	p3 := PersistedTorrent{MagnetURI: "magnet:?xt=urn:btih:abc", MetadataFilePath: "/x.torrent"}
	if err := p3.Validate(); err == nil {
		t.Fatalf("expected error for two sources")
	}
}
