// Package audio defines the segment model that every pipeline node, source
// and sink in this repository speaks: ordered, timestamped units carrying
// either a block of interleaved-stereo PCM or a control marker.
package audio

import (
	"fmt"

	"github.com/arung-agamani/denpa-radio/internal/metadata"
)

// SampleType tags the concrete representation carried by a Chunk. Sinks
// that only accept integer PCM use IsInteger to reject F32/F64 chunks.
type SampleType int

const (
	I16 SampleType = iota
	I24
	I32
	F32
	F64
)

func (t SampleType) String() string {
	switch t {
	case I16:
		return "i16"
	case I24:
		return "i24"
	case I32:
		return "i32"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return "unknown"
	}
}

// IsInteger reports whether t is one of the fixed-point integer types.
func (t SampleType) IsInteger() bool {
	return t == I16 || t == I24 || t == I32
}

// BitsPerSample returns the natural PCM bit depth for integer sample types.
// Float types have no natural integer PCM width and ok is false.
func (t SampleType) BitsPerSample() (bits int, ok bool) {
	switch t {
	case I16:
		return 16, true
	case I24:
		return 24, true
	case I32:
		return 32, true
	default:
		return 0, false
	}
}

// Chunk is a block of interleaved, two-channel PCM samples. Exactly one of
// the typed slices is populated, selected by Type; the others are nil.
// Each slice's length is always even (left, right, left, right, ...).
type Chunk struct {
	SampleRate uint32
	Type       SampleType

	Int16   []int16
	Int24   []int32 // 24-bit values, sign-extended into the low bits of int32
	Int32   []int32
	Float32 []float32
	Float64 []float64
}

// Frames returns the number of stereo sample-frames in the chunk.
func (c *Chunk) Frames() int {
	switch c.Type {
	case I16:
		return len(c.Int16) / 2
	case I24:
		return len(c.Int24) / 2
	case I32:
		return len(c.Int32) / 2
	case F32:
		return len(c.Float32) / 2
	case F64:
		return len(c.Float64) / 2
	default:
		return 0
	}
}

const channels = 2

func NewI16Chunk(sampleRate uint32, interleaved []int16) *Chunk {
	mustBeStereo(len(interleaved))
	return &Chunk{SampleRate: sampleRate, Type: I16, Int16: interleaved}
}

func NewI24Chunk(sampleRate uint32, interleaved []int32) *Chunk {
	mustBeStereo(len(interleaved))
	return &Chunk{SampleRate: sampleRate, Type: I24, Int24: interleaved}
}

func NewI32Chunk(sampleRate uint32, interleaved []int32) *Chunk {
	mustBeStereo(len(interleaved))
	return &Chunk{SampleRate: sampleRate, Type: I32, Int32: interleaved}
}

func NewF32Chunk(sampleRate uint32, interleaved []float32) *Chunk {
	mustBeStereo(len(interleaved))
	return &Chunk{SampleRate: sampleRate, Type: F32, Float32: interleaved}
}

func NewF64Chunk(sampleRate uint32, interleaved []float64) *Chunk {
	mustBeStereo(len(interleaved))
	return &Chunk{SampleRate: sampleRate, Type: F64, Float64: interleaved}
}

func mustBeStereo(n int) {
	if n%channels != 0 {
		panic(fmt.Sprintf("audio: chunk length %d is not a whole number of stereo frames", n))
	}
}

// SyncMarker is the sealed set of control markers a Segment can carry
// instead of a Chunk.
type SyncMarker interface{ syncMarker() }

// TrackBoundary announces the start of a new track. Metadata may be nil if
// it is not yet known and filled in later by SetTitle/SetArtist/... on the
// same handle every downstream sink was handed.
type TrackBoundary struct{ Metadata *metadata.Handle }

func (TrackBoundary) syncMarker() {}

// EndOfStream is terminal: no further segments follow it on the same
// channel.
type EndOfStream struct{}

func (EndOfStream) syncMarker() {}

// TopZeroSync marks the following chunk's timestamp as the track's time
// origin (0.0). PlaylistSource emits one right before each track's first
// chunk, after that track's TrackBoundary. The streaming sinks skip it; their
// pacers reset on a TrackBoundary and on timestamps below 0.1s instead.
type TopZeroSync struct{}

func (TopZeroSync) syncMarker() {}

// Heartbeat keeps idle downstream consumers (HTTP clients waiting on a
// still-buffering track) from timing out.
type Heartbeat struct{}

func (Heartbeat) syncMarker() {}

// ErrorMarker reports a recoverable failure (e.g. a decoder error on one
// track) without terminating the stream; playback continues with the next
// segment.
type ErrorMarker struct{ Message string }

func (ErrorMarker) syncMarker() {}

// Segment is the unit of data flowing through a pipeline: either a Chunk of
// audio or a SyncMarker, never both, always carrying an Order (monotonic
// per-pipeline sequence number) and a TimestampSec relative to the start of
// the current track.
type Segment struct {
	Order        uint64
	TimestampSec float64

	chunk *Chunk
	sync  SyncMarker
}

func NewChunkSegment(order uint64, timestampSec float64, chunk *Chunk) *Segment {
	return &Segment{Order: order, TimestampSec: timestampSec, chunk: chunk}
}

func NewSyncSegment(order uint64, timestampSec float64, marker SyncMarker) *Segment {
	return &Segment{Order: order, TimestampSec: timestampSec, sync: marker}
}

func NewTrackBoundarySegment(order uint64, timestampSec float64, md *metadata.Handle) *Segment {
	return NewSyncSegment(order, timestampSec, TrackBoundary{Metadata: md})
}

func NewEndOfStreamSegment(order uint64, timestampSec float64) *Segment {
	return NewSyncSegment(order, timestampSec, EndOfStream{})
}

func NewTopZeroSyncSegment(order uint64, timestampSec float64) *Segment {
	return NewSyncSegment(order, timestampSec, TopZeroSync{})
}

func NewHeartbeatSegment(order uint64, timestampSec float64) *Segment {
	return NewSyncSegment(order, timestampSec, Heartbeat{})
}

func NewErrorSegment(order uint64, timestampSec float64, message string) *Segment {
	return NewSyncSegment(order, timestampSec, ErrorMarker{Message: message})
}

// AsChunk returns the segment's Chunk and true, or nil and false if this is
// a sync segment.
func (s *Segment) AsChunk() (*Chunk, bool) {
	if s.chunk != nil {
		return s.chunk, true
	}
	return nil, false
}

func (s *Segment) IsChunk() bool { return s.chunk != nil }
func (s *Segment) IsSync() bool  { return s.sync != nil }

// Marker returns the segment's SyncMarker, or nil for a chunk segment.
func (s *Segment) Marker() SyncMarker { return s.sync }

func (s *Segment) IsEndOfStream() bool {
	_, ok := s.sync.(EndOfStream)
	return ok
}

func (s *Segment) IsTopZeroSync() bool {
	_, ok := s.sync.(TopZeroSync)
	return ok
}

// AsTrackBoundary returns the boundary's metadata handle and true, or nil
// and false if this segment is not a TrackBoundary.
func (s *Segment) AsTrackBoundary() (*metadata.Handle, bool) {
	if tb, ok := s.sync.(TrackBoundary); ok {
		return tb.Metadata, true
	}
	return nil, false
}

// AsError returns the marker's message and true, or "" and false if this
// segment is not an ErrorMarker.
func (s *Segment) AsError() (string, bool) {
	if em, ok := s.sync.(ErrorMarker); ok {
		return em.Message, true
	}
	return "", false
}
