package camera

import "time"

// Frame is one encoded image delivered by the capture pipeline. Seq grows
// monotonically for the lifetime of the pipeline, which is one mission, so
// ordering within a session can be recovered from it alone.
type Frame struct {
	Seq       uint64
	Timestamp time.Time
	Data      []byte
}

// Source delivers an ordered stream of encoded frames at whatever rate the
// capture pipeline was configured for. Receiving from Frames is the pacing
// mechanism of the acquisition loop: a frame arrives, the loop runs once.
// The channel is closed when the pipeline terminates.
type Source interface {
	Frames() <-chan Frame
	Close() error
}
