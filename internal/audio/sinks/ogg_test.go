package sinks

import (
	"bytes"
	"testing"

	"github.com/matryer/is"

	"github.com/arung-agamani/denpa-radio/internal/audio/flacenc"
)

func TestOggLogicalStreamPageFraming(t *testing.T) {
	is := is.New(t)

	stream := newOggLogicalStream()
	payload := bytes.Repeat([]byte{0x42}, 300) // spans two lacing segments

	page := stream.page(payload, oggHeaderBOS, 1234)

	is.True(bytes.HasPrefix(page, []byte("OggS"))) // capture pattern
	is.Equal(page[5], byte(oggHeaderBOS))           // header type preserved

	nSegments := int(page[26])
	is.Equal(nSegments, 300/255+1) // lacing table sized for payload > 255 bytes

	stored := uint32(page[22]) | uint32(page[23])<<8 | uint32(page[24])<<16 | uint32(page[25])<<24
	cleared := append([]byte(nil), page...)
	cleared[22], cleared[23], cleared[24], cleared[25] = 0, 0, 0, 0
	is.Equal(stored, oggChecksum(cleared)) // stored checksum matches a recompute over the zeroed field
}

func TestFlacIdentificationPacketHeader(t *testing.T) {
	is := is.New(t)

	header := flacenc.BuildHeader(flacenc.StreamInfo{
		SampleRate:    44100,
		Channels:      2,
		BitsPerSample: 16,
		MinBlockSize:  256,
		MaxBlockSize:  256,
	})
	packet := flacIdentificationPacket(header)

	is.Equal(packet[0], byte(0x7F))
	is.Equal(string(packet[1:5]), flacIDSignature)
	is.True(bytes.Contains(packet, []byte(flacNativeMagic)))
}
