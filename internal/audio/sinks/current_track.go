package sinks

import (
	"sync/atomic"

	"github.com/arung-agamani/denpa-radio/internal/metadata"
)

// currentTrackHandle publishes the metadata.Handle of whichever track a
// streaming sink is currently encoding, so an HTTP handler on a different
// goroutine (the ICY title lookup for /stream.flac and /stream.ogg) can read
// it without synchronizing with the sink's own run loop.
type currentTrackHandle struct {
	v atomic.Value
}

func (c *currentTrackHandle) store(md *metadata.Handle) {
	if md == nil {
		return
	}
	c.v.Store(md)
}

// Load returns the most recently stored handle, or nil if no track has
// started yet.
func (c *currentTrackHandle) Load() *metadata.Handle {
	md, _ := c.v.Load().(*metadata.Handle)
	return md
}
