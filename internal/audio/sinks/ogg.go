package sinks

import (
	"crypto/rand"
	"encoding/binary"
)

// ogg page header types, RFC 3533 §6.
const (
	oggHeaderContinuation = 0x00
	oggHeaderBOS          = 0x02
	oggHeaderEOS          = 0x04

	oggPageHeaderSize  = 27
	flacOggMapVersion  = 1
	flacIDSignature    = "FLAC"
	flacNativeMagic    = "fLaC"
	vorbisVendorString = "denpa-radio"
)

// oggCRCTable is OGG's page checksum polynomial (0x04c11db7), computed
// MSB-first and left un-reflected, the same construction every OGG
// container writer in the ecosystem uses.
var oggCRCTable [256]uint32

func init() {
	const poly = 0x04c11db7
	for i := range oggCRCTable {
		r := uint32(i) << 24
		for j := 0; j < 8; j++ {
			if r&0x80000000 != 0 {
				r = (r << 1) ^ poly
			} else {
				r <<= 1
			}
		}
		oggCRCTable[i] = r
	}
}

func oggChecksum(page []byte) uint32 {
	var crc uint32
	for _, b := range page {
		crc = (crc << 8) ^ oggCRCTable[byte(crc>>24)^b]
	}
	return crc
}

// oggLogicalStream builds pages for a single OGG logical bitstream (one
// per track, chained end-to-end): it owns the serial number, page
// sequence counter and running granule position a FLAC-in-OGG mapping
// needs.
type oggLogicalStream struct {
	serial    uint32
	pageIndex uint32
}

func newOggLogicalStream() *oggLogicalStream {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return &oggLogicalStream{serial: binary.LittleEndian.Uint32(b[:])}
}

// page packs payload into a single OGG page (never spanning pages: every
// payload produced by this sink, one FLAC frame or one metadata packet,
// comfortably fits the 255*255-byte maximum a single page can carry).
func (s *oggLogicalStream) page(payload []byte, headerType byte, granulePos uint64) []byte {
	nSegments := len(payload)/255 + 1
	page := make([]byte, oggPageHeaderSize+len(payload)+nSegments)

	copy(page[0:], "OggS")
	page[4] = 0 // version
	page[5] = headerType
	binary.LittleEndian.PutUint64(page[6:], granulePos)
	binary.LittleEndian.PutUint32(page[14:], s.serial)
	binary.LittleEndian.PutUint32(page[18:], s.pageIndex)
	page[26] = byte(nSegments)

	for i := 0; i < nSegments-1; i++ {
		page[oggPageHeaderSize+i] = 255
	}
	page[oggPageHeaderSize+nSegments-1] = byte(len(payload) % 255)
	copy(page[oggPageHeaderSize+nSegments:], payload)

	binary.LittleEndian.PutUint32(page[22:], oggChecksum(page))

	s.pageIndex++
	return page
}

// flacIdentificationPacket builds the FLAC-in-OGG mapping's first packet:
// https://xiph.org/flac/ogg_mapping.html — a fixed 9-byte header followed
// by the native "fLaC" signature and a single STREAMINFO metadata block.
func flacIdentificationPacket(streamInfoBlock []byte) []byte {
	packet := make([]byte, 9+len(streamInfoBlock))
	packet[0] = 0x7F
	copy(packet[1:], flacIDSignature)
	packet[5] = flacOggMapVersion
	packet[6] = 0 // minor version
	binary.BigEndian.PutUint16(packet[7:], 1)
	copy(packet[9:], streamInfoBlock)
	return packet
}

// vorbisCommentPacket builds an empty Vorbis comment metadata block
// (FLAC metadata block type 4, flagged as the last metadata block) to
// satisfy the mapping's required second page.
func vorbisCommentPacket() []byte {
	vendor := []byte(vorbisVendorString)
	body := make([]byte, 4+len(vendor)+4)
	binary.LittleEndian.PutUint32(body[0:], uint32(len(vendor)))
	copy(body[4:], vendor)
	binary.LittleEndian.PutUint32(body[4+len(vendor):], 0) // 0 user comments

	packet := make([]byte, 4+len(body))
	packet[0] = 0x80 | 4 // last-metadata-block flag | VORBIS_COMMENT type
	length := len(body)
	packet[1] = byte(length >> 16)
	packet[2] = byte(length >> 8)
	packet[3] = byte(length)
	copy(packet[4:], body)
	return packet
}
