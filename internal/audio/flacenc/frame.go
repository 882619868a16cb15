package flacenc

import (
	"bytes"
	"io"

	"github.com/arung-agamani/denpa-radio/internal/audio"
)

// encodeUTF8Coded encodes n using FLAC's UTF-8-like variable-length scheme,
// the inverse of flacutil's frame/sample number decoder.
func encodeUTF8Coded(n uint64) []byte {
	if n < 0x80 {
		return []byte{byte(n)}
	}
	var lead byte
	var cont int
	switch {
	case n < 1<<11:
		lead, cont = 0xC0, 1
	case n < 1<<16:
		lead, cont = 0xE0, 2
	case n < 1<<21:
		lead, cont = 0xF0, 3
	case n < 1<<26:
		lead, cont = 0xF8, 4
	case n < 1<<31:
		lead, cont = 0xFC, 5
	default:
		lead, cont = 0xFE, 6
	}
	out := make([]byte, cont+1)
	for i := cont; i >= 1; i-- {
		out[i] = 0x80 | byte(n&0x3F)
		n >>= 6
	}
	out[0] = lead | byte(n)
	return out
}

// channelSamples splits an interleaved stereo chunk into independent
// per-channel int32 slices, widening whatever concrete representation the
// chunk carries.
func channelSamples(c *audio.Chunk) (left, right []int32) {
	frames := c.Frames()
	left = make([]int32, frames)
	right = make([]int32, frames)
	switch c.Type {
	case audio.I16:
		for i := 0; i < frames; i++ {
			left[i] = int32(c.Int16[2*i])
			right[i] = int32(c.Int16[2*i+1])
		}
	case audio.I24:
		for i := 0; i < frames; i++ {
			left[i] = c.Int24[2*i]
			right[i] = c.Int24[2*i+1]
		}
	case audio.I32:
		for i := 0; i < frames; i++ {
			left[i] = c.Int32[2*i]
			right[i] = c.Int32[2*i+1]
		}
	}
	return left, right
}

func writeVerbatimSubframe(w *bitWriter, samples []int32, bitsPerSample int) {
	w.writeBits(0, 1) // reserved
	w.writeBits(1, 6) // subframe type: SUBFRAME_VERBATIM
	w.writeBits(0, 1) // no wasted bits
	mask := uint64(1)<<uint(bitsPerSample) - 1
	for _, s := range samples {
		w.writeBits(uint64(uint32(s))&mask, uint(bitsPerSample))
	}
}

// buildFrameHeader writes a fixed-blocking-strategy frame header: block
// size uses escape code 0x07 (block size minus one as a 16-bit value at the
// end of the header) and sample rate uses code 0x00 (read from STREAMINFO),
// so the header never needs a lookup table, and channel assignment is
// always independent left/right.
func buildFrameHeader(blockSize int, frameNumber uint64) []byte {
	var buf bytes.Buffer
	buf.WriteByte(0xFF)
	buf.WriteByte(0xF8) // fixed blocking strategy, reserved bit 0
	buf.WriteByte(0x07<<4 | 0x00)
	buf.WriteByte(0x01<<4 | 0x00<<1) // independent stereo, sample size from STREAMINFO
	buf.Write(encodeUTF8Coded(frameNumber))
	var bs [2]byte
	bs[0] = byte((blockSize - 1) >> 8)
	bs[1] = byte(blockSize - 1)
	buf.Write(bs[:])
	header := buf.Bytes()
	return append(header, crc8(header))
}

// EncodeFrame writes chunk as one FLAC frame to w: a header identifying
// its block size and frame number, a verbatim subframe per channel, and a
// CRC-16 footer over the whole frame.
func EncodeFrame(w io.Writer, chunk *audio.Chunk, frameNumber uint64) error {
	bitsPerSample, ok := chunk.Type.BitsPerSample()
	if !ok {
		return audio.EncoderErrorf(nil, "flacenc: sample type %v is not integer PCM", chunk.Type)
	}
	left, right := channelSamples(chunk)

	header := buildFrameHeader(chunk.Frames(), frameNumber)

	sub := &bitWriter{}
	writeVerbatimSubframe(sub, left, bitsPerSample)
	writeVerbatimSubframe(sub, right, bitsPerSample)
	sub.alignToByte()

	var full bytes.Buffer
	full.Write(header)
	full.Write(sub.Bytes())
	footer := crc16(full.Bytes())

	if _, err := w.Write(full.Bytes()); err != nil {
		return audio.IOErrorf(err, "flacenc: writing frame")
	}
	var footerBytes [2]byte
	footerBytes[0] = byte(footer >> 8)
	footerBytes[1] = byte(footer)
	if _, err := w.Write(footerBytes[:]); err != nil {
		return audio.IOErrorf(err, "flacenc: writing frame footer")
	}
	return nil
}
