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

// minSendBytes is the smallest batch of encoded FLAC bytes StreamingFLACSink
// hands to its broadcast queue in one Send: several small frames are
// coalesced into one network-sized write rather than sent frame-by-frame.
const minSendBytes = 1024

// StreamingFLACSink is a terminal pipeline node that re-encodes the PCM
// chunks it receives into a live FLAC byte stream, paced to wall-clock
// time, and publishes it through a broadcast.Queue every HTTP client
// subscribes to independently.
type StreamingFLACSink struct {
	Queue *broadcast.Queue[[]byte]

	maxLead time.Duration
	current currentTrackHandle
}

// CurrentMetadata returns the metadata handle of the track this sink is
// currently encoding, or nil if none has started yet.
func (s *StreamingFLACSink) CurrentMetadata() *metadata.Handle {
	return s.current.Load()
}

// NewStreamingFLACSink returns a sink with a freshly constructed queue
// sized for maxLead of lead time (broadcast.DefaultMaxLeadTime if zero).
func NewStreamingFLACSink(maxLead time.Duration) *StreamingFLACSink {
	lead := maxLead
	if lead <= 0 {
		lead = broadcast.DefaultMaxLeadTime
	}
	q := broadcast.New[[]byte](broadcast.CalculateCapacity(lead))
	q.SetAutoStop(true)
	return &StreamingFLACSink{Queue: q, maxLead: lead}
}

func (s *StreamingFLACSink) Node() *pipeline.Node {
	return pipeline.NewSink(s.run, pipeline.AnyInteger())
}

func (s *StreamingFLACSink) run(ctx context.Context, in <-chan *audio.Segment, _ []chan<- *audio.Segment) error {
	pacer := flacutil.NewBroadcastPacer(s.maxLead, "flac")
	var enc *flacenc.Encoder
	var pending bytes.Buffer
	var sendBuf bytes.Buffer
	timestampOffset := 0.0
	lastTimestamp := 0.0
	firstTrack := true
	queueClosed := false

	flush := func() {
		if sendBuf.Len() == 0 || queueClosed {
			return
		}
		data := append([]byte(nil), sendBuf.Bytes()...)
		sendBuf.Reset()
		if err := s.Queue.Send(data, lastTimestamp, 0); err != nil {
			if err == broadcast.ErrClosed {
				queueClosed = true
			}
			// ErrExpired: a slower-than-realtime producer resent something
			// already superseded; drop it and keep going.
		}
	}

	for {
		select {
		case <-ctx.Done():
			return audio.Cancelled(ctx.Err())
		case seg, ok := <-in:
			if !ok {
				flush()
				return nil
			}
			if seg.IsEndOfStream() {
				// No further frame will ever follow the last one still
				// sitting in pending to confirm its boundary; flush it
				// unconditionally now that the stream is ending.
				sendBuf.Write(pending.Bytes())
				pending.Reset()
				flush()
				s.Queue.Close()
				return nil
			}
			if md, isBoundary := seg.AsTrackBoundary(); isBoundary {
				s.current.store(md)
				if !firstTrack {
					timestampOffset += lastTimestamp
					sendBuf.Write(pending.Bytes())
					pending.Reset()
					flush()
					enc = nil
					pacer.Reset()
				}
				firstTrack = false
				continue
			}
			c, isChunk := seg.AsChunk()
			if !isChunk {
				continue // TopZeroSync, Heartbeat, ErrorMarker carry no audio
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

			if enc == nil {
				bits, ok := c.Type.BitsPerSample()
				if !ok {
					return audio.Processingf("streaming flac sink: unsupported sample type %v", c.Type)
				}
				enc = flacenc.NewEncoder(&pending, flacenc.StreamInfo{
					SampleRate:    c.SampleRate,
					Channels:      2,
					BitsPerSample: bits,
					MinBlockSize:  uint16(c.Frames()),
					MaxBlockSize:  uint16(c.Frames()),
				})
				s.Queue.SetHeader(enc.HeaderBytes())
				s.Queue.NewEpoch()
			}
			if err := enc.EncodeChunk(c); err != nil {
				return err
			}

			boundary, _ := flacutil.FindCompleteFramesWithSamples(pending.Bytes())
			if boundary > 0 {
				sendBuf.Write(pending.Next(boundary))
			}
			if sendBuf.Len() >= minSendBytes {
				flush()
			}
		}
	}
}
