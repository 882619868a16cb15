package sinks

import (
	"bytes"
	"context"
	"time"

	"github.com/arung-agamani/denpa-radio/internal/audio"
	"github.com/arung-agamani/denpa-radio/internal/audio/broadcast"
	"github.com/arung-agamani/denpa-radio/internal/audio/flacenc"
	"github.com/arung-agamani/denpa-radio/internal/audio/flacutil"
	"github.com/arung-agamani/denpa-radio/internal/audio/pipeline"
	"github.com/arung-agamani/denpa-radio/internal/metadata"
)

// StreamingOggFLACSink is a terminal pipeline node that packages the FLAC
// frames it encodes one-per-page into an OGG bitstream, per
// https://xiph.org/flac/ogg_mapping.html, chaining a fresh logical
// bitstream (new serial number, BOS/Comment pages, STREAMINFO) at every
// track boundary the way Icecast chains Ogg Vorbis streams across
// metadata changes.
type StreamingOggFLACSink struct {
	Queue *broadcast.Queue[[]byte]

	maxLead time.Duration
	current currentTrackHandle
}

// CurrentMetadata returns the metadata handle of the track this sink is
// currently encoding, or nil if none has started yet.
func (s *StreamingOggFLACSink) CurrentMetadata() *metadata.Handle {
	return s.current.Load()
}

// NewStreamingOggFLACSink returns a sink with a freshly constructed queue
// sized for maxLead of lead time (broadcast.DefaultMaxLeadTime if zero).
func NewStreamingOggFLACSink(maxLead time.Duration) *StreamingOggFLACSink {
	lead := maxLead
	if lead <= 0 {
		lead = broadcast.DefaultMaxLeadTime
	}
	q := broadcast.New[[]byte](broadcast.CalculateCapacity(lead))
	q.SetAutoStop(true)
	return &StreamingOggFLACSink{Queue: q, maxLead: lead}
}

func (s *StreamingOggFLACSink) Node() *pipeline.Node {
	return pipeline.NewSink(s.run, pipeline.AnyInteger())
}

func (s *StreamingOggFLACSink) run(ctx context.Context, in <-chan *audio.Segment, _ []chan<- *audio.Segment) error {
	pacer := flacutil.NewBroadcastPacer(s.maxLead, "ogg-flac")

	var stream *oggLogicalStream
	var frameNumber uint64
	var granule uint64
	timestampOffset := 0.0
	lastTimestamp := 0.0
	firstTrack := true
	queueClosed := false

	send := func(page []byte) {
		if queueClosed {
			return
		}
		if err := s.Queue.Send(page, lastTimestamp, 0); err != nil {
			if err == broadcast.ErrClosed {
				queueClosed = true
			}
		}
	}

	startLogicalStream := func(info flacenc.StreamInfo) {
		stream = newOggLogicalStream()
		frameNumber = 0
		granule = 0

		idPacket := flacIdentificationPacket(flacenc.BuildHeader(info))
		bos := stream.page(idPacket, oggHeaderBOS, 0)
		comment := stream.page(vorbisCommentPacket(), oggHeaderContinuation, 0)

		s.Queue.SetHeader(bos, comment)
		s.Queue.NewEpoch()
		send(bos)
		send(comment)
	}

	endLogicalStream := func() {
		if stream == nil {
			return
		}
		// The mapping requires the final page of a logical stream to carry
		// the EOS flag; since every audio page already carries exactly one
		// frame, re-flagging an empty trailing page keeps page sequencing
		// simple rather than having to rewrite the last audio page in place.
		send(stream.page(nil, oggHeaderEOS, granule))
		stream = nil
	}

	for {
		select {
		case <-ctx.Done():
			return audio.Cancelled(ctx.Err())
		case seg, ok := <-in:
			if !ok {
				endLogicalStream()
				return nil
			}
			if seg.IsEndOfStream() {
				endLogicalStream()
				s.Queue.Close()
				return nil
			}
			if md, isBoundary := seg.AsTrackBoundary(); isBoundary {
				s.current.store(md)
				if !firstTrack {
					timestampOffset += lastTimestamp
					endLogicalStream()
					pacer.Reset()
				}
				firstTrack = false
				continue
			}
			c, isChunk := seg.AsChunk()
			if !isChunk {
				continue
			}
			if queueClosed {
				continue
			}

			ts := seg.TimestampSec + timestampOffset
			if err := pacer.CheckAndPace(ctx, ts); err != nil {
				if err == flacutil.ErrLate {
					continue
				}
				return audio.Cancelled(err)
			}
			lastTimestamp = ts

			if stream == nil {
				bits, ok := c.Type.BitsPerSample()
				if !ok {
					return audio.Processingf("streaming ogg-flac sink: unsupported sample type %v", c.Type)
				}
				startLogicalStream(flacenc.StreamInfo{
					SampleRate:    c.SampleRate,
					Channels:      2,
					BitsPerSample: bits,
					MinBlockSize:  uint16(c.Frames()),
					MaxBlockSize:  uint16(c.Frames()),
				})
			}

			var frame bytes.Buffer
			if err := flacenc.EncodeFrame(&frame, c, frameNumber); err != nil {
				return err
			}
			frameNumber++
			granule += uint64(c.Frames())

			send(stream.page(frame.Bytes(), oggHeaderContinuation, granule))
		}
	}
}
