package model

// SessionStatistics holds the cumulative (never-decreasing) counters
// and session-start count from spec §3.
type SessionStatistics struct {
	UploadedBytes   int64
	DownloadedBytes int64
	SecondsActive   int64
	SessionCount    int64
}

// Add returns a new SessionStatistics with deltaUp/deltaDown/deltaSec
// folded in. SessionCount is left untouched; bump it explicitly on
// daemon start.
func (s SessionStatistics) Add(deltaDown, deltaUp, deltaSec int64) SessionStatistics {
	s.DownloadedBytes += deltaDown
	s.UploadedBytes += deltaUp
	s.SecondsActive += deltaSec
	return s
}
