package sources

import (
	"github.com/mewkiz/flac/frame"

	"github.com/arung-agamani/denpa-radio/internal/audio"
)

// chunkAccumulator buffers decoded FLAC frames into fixed-size,
// interleaved-stereo PCM chunks of a single sample type, duplicating a
// mono source's single channel across both output channels.
type chunkAccumulator struct {
	sampleType audio.SampleType
	sampleRate uint32
	channels   int
	chunkSize  int

	i16 []int16
	i32 []int32 // shared by I24 and I32 sample types
}

func newChunkAccumulator(sampleType audio.SampleType, sampleRate uint32, channels, chunkSize int) *chunkAccumulator {
	return &chunkAccumulator{sampleType: sampleType, sampleRate: sampleRate, channels: channels, chunkSize: chunkSize}
}

// appendFrame decodes one FLAC frame's samples into the accumulator's
// pending interleaved buffer.
func (a *chunkAccumulator) appendFrame(frm *frame.Frame) {
	left := frm.Subframes[0].Samples
	right := left
	if a.channels >= 2 && len(frm.Subframes) > 1 {
		right = frm.Subframes[1].Samples
	}

	n := len(left)
	switch a.sampleType {
	case audio.I16:
		for i := 0; i < n; i++ {
			a.i16 = append(a.i16, int16(left[i]), int16(right[i]))
		}
	default: // I24, I32 both carry int32 interleaved data
		for i := 0; i < n; i++ {
			a.i32 = append(a.i32, left[i], right[i])
		}
	}
}

// framesPending returns the number of complete stereo frames buffered.
func (a *chunkAccumulator) framesPending() int {
	switch a.sampleType {
	case audio.I16:
		return len(a.i16) / 2
	default:
		return len(a.i32) / 2
	}
}

// takeChunk removes the first n frames from the pending buffer and
// returns them as a new Chunk.
func (a *chunkAccumulator) takeChunk(n int) *audio.Chunk {
	switch a.sampleType {
	case audio.I16:
		take := a.i16[:n*2]
		out := append([]int16(nil), take...)
		a.i16 = append([]int16(nil), a.i16[n*2:]...)
		return audio.NewI16Chunk(a.sampleRate, out)
	case audio.I24:
		take := a.i32[:n*2]
		out := append([]int32(nil), take...)
		a.i32 = append([]int32(nil), a.i32[n*2:]...)
		return audio.NewI24Chunk(a.sampleRate, out)
	default: // I32
		take := a.i32[:n*2]
		out := append([]int32(nil), take...)
		a.i32 = append([]int32(nil), a.i32[n*2:]...)
		return audio.NewI32Chunk(a.sampleRate, out)
	}
}
