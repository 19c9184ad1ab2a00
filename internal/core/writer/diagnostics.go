package writer

import (
	"fmt"
	"sync/atomic"
	"time"
)

func (sw *SignalFxWriter) averageDPM() uint {
	minutesActive := time.Since(sw.startTime).Minutes()
	if minutesActive <= 0 {
		return 0
	}
	return uint(float64(atomic.LoadInt64(&sw.dpsSent)) / minutesActive)
}

// Stats is a point-in-time copy of the writer counters
type Stats struct {
	DatapointsSent   int64
	SnapshotsSent    int64
	SnapshotsDropped int64
	SendErrors       int64
	RequestsActive   int64
	Buffered         int
}

// Stats returns the current counters
func (sw *SignalFxWriter) Stats() Stats {
	return Stats{
		DatapointsSent:   atomic.LoadInt64(&sw.dpsSent),
		SnapshotsSent:    atomic.LoadInt64(&sw.snapshotsSent),
		SnapshotsDropped: atomic.LoadInt64(&sw.snapshotsDropped),
		SendErrors:       atomic.LoadInt64(&sw.sendErrors),
		RequestsActive:   atomic.LoadInt64(&sw.dpRequestsActive),
		Buffered:         len(sw.snapChan),
	}
}

// DiagnosticText outputs a string that describes the state of the writer to a
// human.
func (sw *SignalFxWriter) DiagnosticText() string {
	s := sw.Stats()
	return fmt.Sprintf(
		"Writer Status:\n"+
			"Ingest URL:                 %s\n"+
			"Extra Dims:                 %v\n"+
			"Average DPM:                %d\n"+
			"DPs Sent:                   %d\n"+
			"Snapshots Sent:             %d\n"+
			"Snapshots Dropped:          %d\n"+
			"Send Errors:                %d\n"+
			"DP Requests Active:         %d\n"+
			"Snapshot Queue (len/cap):   %d/%d\n",
		sw.conf.IngestURL,
		sw.conf.ExtraDimensions,
		sw.averageDPM(),
		s.DatapointsSent,
		s.SnapshotsSent,
		s.SnapshotsDropped,
		s.SendErrors,
		s.RequestsActive,
		s.Buffered,
		cap(sw.snapChan))
}
