// Package flacenc is a minimal FLAC encoder: it emits a fLaC signature and
// STREAMINFO metadata block followed by one verbatim-subframe frame per
// audio.Chunk. It trades the compression a real encoder would apply (fixed,
// LPC, or Rice-coded subframes) for simplicity; see DESIGN.md for the
// rationale.
package flacenc

import (
	"encoding/binary"
	"io"

	"github.com/arung-agamani/denpa-radio/internal/audio"
)

// Signature is the four-byte marker every FLAC stream begins with.
const Signature = "fLaC"

// StreamInfo carries the fields this encoder fills into the mandatory
// STREAMINFO metadata block. The block's total-sample count is always
// written as 0 ("unknown"), which a streaming source (rather than a fixed
// file) always is.
type StreamInfo struct {
	SampleRate    uint32
	Channels      int
	BitsPerSample int
	MinBlockSize  uint16
	MaxBlockSize  uint16
}

// BuildHeader returns the fLaC signature plus a single STREAMINFO metadata
// block (marked as the last metadata block, so the first frame follows
// immediately), ready to prepend to a frame stream or cache ahead of a
// broadcast queue's live segments.
func BuildHeader(info StreamInfo) []byte {
	out := make([]byte, 0, 4+4+34)
	out = append(out, Signature...)

	// Metadata block header: last-block flag (1 bit) + type (7 bits,
	// 0 = STREAMINFO), then a 24-bit big-endian length.
	out = append(out, 0x80|0x00)
	out = append(out, 0x00, 0x00, 0x22) // length 34, fixed for STREAMINFO

	body := make([]byte, 34)
	binary.BigEndian.PutUint16(body[0:2], info.MinBlockSize)
	binary.BigEndian.PutUint16(body[2:4], info.MaxBlockSize)
	// Bytes 4..10: min/max frame size (24 bits each), left 0 = unknown.

	var packed uint64
	packed |= uint64(info.SampleRate&0xFFFFF) << 44
	packed |= uint64((info.Channels-1)&0x7) << 41
	packed |= uint64((info.BitsPerSample-1)&0x1F) << 36
	// Remaining 36 bits are total sample count; 0 = unknown.
	binary.BigEndian.PutUint64(body[10:18], packed)
	// Bytes 18..34: MD5 of the unencoded audio, left zero since this
	// encoder never has the whole stream in hand to checksum.

	return append(out, body...)
}

// WriteHeader writes BuildHeader's bytes to w.
func WriteHeader(w io.Writer, info StreamInfo) error {
	if _, err := w.Write(BuildHeader(info)); err != nil {
		return audio.IOErrorf(err, "flacenc: writing stream header")
	}
	return nil
}
