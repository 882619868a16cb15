package flacenc

import (
	"io"

	"github.com/arung-agamani/denpa-radio/internal/audio"
)

// Encoder drives a FLAC byte stream: it writes the header lazily before
// the first chunk (so a caller that never receives audio never emits a
// dangling header) and numbers frames sequentially afterwards.
type Encoder struct {
	w             io.Writer
	info          StreamInfo
	headerWritten bool
	frameNumber   uint64
}

func NewEncoder(w io.Writer, info StreamInfo) *Encoder {
	return &Encoder{w: w, info: info}
}

// HeaderBytes returns the header this encoder will write (or already has),
// for callers that need to cache it separately, e.g. to replay ahead of a
// broadcast queue's live segments for clients that join mid-stream.
func (e *Encoder) HeaderBytes() []byte { return BuildHeader(e.info) }

// EncodeChunk writes chunk as the next frame, writing the stream header
// first if this is the encoder's first call.
func (e *Encoder) EncodeChunk(chunk *audio.Chunk) error {
	if !e.headerWritten {
		if err := WriteHeader(e.w, e.info); err != nil {
			return err
		}
		e.headerWritten = true
	}
	if err := EncodeFrame(e.w, chunk, e.frameNumber); err != nil {
		return err
	}
	e.frameNumber++
	return nil
}

// Reset restarts the encoder against a new stream description, as happens
// when a streaming sink crosses a track boundary into audio with a
// different sample rate or bit depth.
func (e *Encoder) Reset(info StreamInfo) {
	e.info = info
	e.headerWritten = false
	e.frameNumber = 0
}
