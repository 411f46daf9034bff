package ioworker

import "testing"

func TestFreeSpaceBytesReportsNonZeroForTempDir(t *testing.T) {
	free, err := FreeSpaceBytes(t.TempDir())
	if err != nil {
		t.Fatalf("FreeSpaceBytes: %v", err)
	}
	if free == 0 {
		t.Fatalf("expected a non-zero free space reading")
	}
}

func TestFreeSpaceBytesErrorsOnMissingPath(t *testing.T) {
	if _, err := FreeSpaceBytes("/nonexistent-path-tinytorrent-test"); err == nil {
		t.Fatalf("expected error for missing path")
	}
}
