// Package sinks implements pipeline sink nodes: terminal consumers of a
// segment stream that persist it (CacheSink) or re-encode it for live
// delivery (StreamingFLACSink, StreamingOggFLACSink).
package sinks

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/arung-agamani/denpa-radio/internal/audio"
	"github.com/arung-agamani/denpa-radio/internal/audio/flacenc"
	"github.com/arung-agamani/denpa-radio/internal/audio/pipeline"
	"github.com/arung-agamani/denpa-radio/internal/audiocache"
	"github.com/arung-agamani/denpa-radio/internal/covers"
	"github.com/arung-agamani/denpa-radio/internal/metadata"
)

// publishRetries/publishRetryInterval bound how long publish waits for the
// cache to finish registering a pk it learned about by independently
// hashing the same prefix AddFromReader is still reading, rather than by
// waiting for AddFromReader itself to return.
const (
	publishRetries       = 5
	publishRetryInterval = 20 * time.Millisecond
)

// Playlist receives the cache pk of every track CacheSink finishes
// publishing, as soon as enough of it has been ingested to derive a pk.
type Playlist interface {
	Push(ctx context.Context, cachePk string) error
}

// CacheSink is a terminal pipeline node: it re-encodes the integer-PCM
// chunks it receives into FLAC and hands the byte stream to an
// audiocache.Cache, publishing each track's metadata, resolved cover art,
// and cache pk to an optional Playlist as soon as enough of the track has
// been ingested to be usefully progressive-played, rather than waiting
// for the whole track to finish encoding.
type CacheSink struct {
	Cache    audiocache.Cache
	Covers   covers.Cache
	Playlist Playlist
}

// NewCacheSink returns a CacheSink wrapping cache and an optional cover
// resolver (nil disables cover-art resolution).
func NewCacheSink(cache audiocache.Cache, coverCache covers.Cache) *CacheSink {
	return &CacheSink{Cache: cache, Covers: coverCache}
}

// WithPlaylist attaches the playlist new cache entries are pushed to.
func (s *CacheSink) WithPlaylist(p Playlist) *CacheSink {
	s.Playlist = p
	return s
}

// Node builds the pipeline.Node wrapping this sink's Logic. CacheSink only
// accepts integer PCM (I16/I24/I32); a resampling/bit-depth transform
// upstream is required for float sources.
func (s *CacheSink) Node() *pipeline.Node {
	return pipeline.NewSink(s.run, pipeline.AnyInteger())
}

func (s *CacheSink) run(ctx context.Context, in <-chan *audio.Segment, _ []chan<- *audio.Segment) error {
	var pendingMetadata *metadata.Handle

	for {
		first, md, err := waitForFirstChunk(ctx, in, pendingMetadata)
		pendingMetadata = nil
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		next, err := s.processTrack(ctx, in, first, md)
		if err != nil {
			if audio.IsCancelled(err) {
				return err
			}
			slog.Error("cache sink: track processing failed", "error", err)
			continue
		}
		pendingMetadata = next
	}
}

// waitForFirstChunk consumes sync markers until it finds this track's
// first audio chunk, capturing metadata off a TrackBoundary as it passes.
// pendingMetadata, when non-nil, is a TrackBoundary's metadata already
// consumed by the previous call's dispatch loop. Returns io.EOF once
// EndOfStream is reached with no further audio.
func waitForFirstChunk(ctx context.Context, in <-chan *audio.Segment, pendingMetadata *metadata.Handle) (*audio.Chunk, *metadata.Handle, error) {
	md := pendingMetadata
	for {
		select {
		case <-ctx.Done():
			return nil, nil, audio.Cancelled(ctx.Err())
		case seg, ok := <-in:
			if !ok {
				return nil, nil, io.EOF
			}
			if c, isChunk := seg.AsChunk(); isChunk {
				if c.Frames() == 0 {
					continue
				}
				return c, md, nil
			}
			if tb, isBoundary := seg.AsTrackBoundary(); isBoundary {
				md = tb
				continue
			}
			if seg.IsEndOfStream() {
				return nil, nil, io.EOF
			}
			// TopZeroSync, Heartbeat, ErrorMarker: ignored here.
		}
	}
}

// prefixCapture passes every write through to w unchanged while hashing
// the stream's first need bytes the same way audiocache derives its dedup
// key, so CacheSink learns the pk its own write will eventually settle
// under without waiting for AddFromReader to finish reading it.
type prefixCapture struct {
	w    io.Writer
	need int
	buf  bytes.Buffer
	pk   string
	done bool
}

func (c *prefixCapture) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	if err == nil && !c.done {
		if remaining := c.need - c.buf.Len(); remaining > 0 {
			take := remaining
			if take > len(p) {
				take = len(p)
			}
			c.buf.Write(p[:take])
		}
		if c.buf.Len() >= c.need {
			c.pk = audiocache.ComputePk(c.buf.Bytes())
			c.done = true
		}
	}
	return n, err
}

// ingestResult is the outcome of an in-flight audiocache.Cache.AddFromReader
// call, delivered over a buffered channel once the cache has finished
// reading (or failed to read) a track's re-encoded FLAC bytes.
type ingestResult struct {
	pk  string
	err error
}

// processTrack re-encodes first and every subsequent chunk up to the next
// TrackBoundary or EndOfStream into FLAC, streaming it into the cache. It
// returns the metadata captured off the TrackBoundary that ended this
// track (the start of the next one), or nil at EndOfStream.
func (s *CacheSink) processTrack(ctx context.Context, in <-chan *audio.Segment, first *audio.Chunk, trackMD *metadata.Handle) (*metadata.Handle, error) {
	bitsPerSample, ok := first.Type.BitsPerSample()
	if !ok {
		return nil, audio.Processingf("cache sink: only integer PCM chunks are supported, got %v", first.Type)
	}

	pr, pw := io.Pipe()
	capture := &prefixCapture{w: pw, need: audiocache.FlacFixedHeaderLen + audiocache.PkPrefixLen}
	enc := flacenc.NewEncoder(capture, flacenc.StreamInfo{
		SampleRate:    first.SampleRate,
		Channels:      2,
		BitsPerSample: bitsPerSample,
		MinBlockSize:  uint16(first.Frames()),
		MaxBlockSize:  uint16(first.Frames()),
	})

	ingestCh := make(chan ingestResult, 1)
	go func() {
		pk, err := s.Cache.AddFromReader(ctx, pr, trackMD)
		ingestCh <- ingestResult{pk: pk, err: err}
	}()

	sampleRate := first.SampleRate
	published := false

	closeEncoder := func(cause error) {
		if cause != nil {
			pw.CloseWithError(cause)
		} else {
			pw.Close()
		}
	}

	sendChunk := func(c *audio.Chunk) error {
		if c.SampleRate != sampleRate {
			return audio.Processingf("cache sink: inconsistent sample rate (%d vs %d)", c.SampleRate, sampleRate)
		}
		return enc.EncodeChunk(c)
	}

	maybePublish := func() {
		if published || !capture.done {
			return
		}
		published = true
		if err := s.publish(ctx, trackMD, capture.pk); err != nil {
			slog.Warn("cache sink: publish failed", "error", err)
		}
	}

	if err := sendChunk(first); err != nil {
		closeEncoder(err)
		<-ingestCh
		return nil, err
	}
	maybePublish()

	var ingestRes *ingestResult
	for {
		select {
		case res := <-ingestCh:
			ingestRes = &res
		case <-ctx.Done():
			closeEncoder(ctx.Err())
			if ingestRes == nil {
				<-ingestCh
			}
			return nil, audio.Cancelled(ctx.Err())
		case seg, ok := <-in:
			if !ok {
				closeEncoder(nil)
				if ingestRes == nil {
					<-ingestCh
				}
				return nil, audio.Processingf("cache sink: upstream closed mid-track")
			}
			if c, isChunk := seg.AsChunk(); isChunk {
				if ingestRes != nil {
					continue // ingestion already finished; further writes would have no reader
				}
				if err := sendChunk(c); err != nil {
					closeEncoder(err)
					<-ingestCh
					return nil, err
				}
				maybePublish()
				continue
			}
			if _, isBoundary := seg.AsTrackBoundary(); !isBoundary && !seg.IsEndOfStream() {
				continue // TopZeroSync, Heartbeat, ErrorMarker do not end the track
			}
			closeEncoder(nil)
			if ingestRes == nil {
				res := <-ingestCh
				ingestRes = &res
			}
			if ingestRes.err != nil {
				return nil, ingestRes.err
			}
			if !published {
				if err := s.publish(ctx, trackMD, ingestRes.pk); err != nil {
					slog.Warn("cache sink: publish failed", "error", err)
				}
			}
			return nextTrackMetadata(seg), nil
		}
	}
}

func nextTrackMetadata(seg *audio.Segment) *metadata.Handle {
	if tb, ok := seg.AsTrackBoundary(); ok {
		return tb
	}
	return nil
}

// publish copies trackMD into the cache's own metadata handle for pk,
// resolves its cover art (tolerating a transient failure), and pushes pk
// to the playlist. pk may have been derived from a prefix hash before the
// cache itself finished registering it, so a handful of TrackMetadata
// lookups are retried before giving up.
func (s *CacheSink) publish(ctx context.Context, trackMD *metadata.Handle, pk string) error {
	if pk == "" {
		return nil
	}

	var cached *metadata.Handle
	for attempt := 0; attempt < publishRetries; attempt++ {
		c, err := s.Cache.TrackMetadata(ctx, pk)
		if err == nil && c != nil {
			cached = c
			break
		}
		select {
		case <-time.After(publishRetryInterval):
		case <-ctx.Done():
			return audio.Cancelled(ctx.Err())
		}
	}

	if cached != nil && trackMD != nil {
		if err := metadata.CopyInto(ctx, trackMD, cached); err != nil {
			slog.Warn("cache sink: metadata copy failed", "error", err)
		}
		cached.SetCachePk(pk)
		if s.Covers != nil {
			if url, _ := trackMD.CoverURL(ctx); url != "" {
				local, err := s.Covers.AddFromURL(ctx, url)
				if err != nil {
					if coverErr, ok := err.(*audio.Error); ok && coverErr.IsTransient() {
						slog.Warn("cache sink: transient cover resolution failure", "error", err)
					} else {
						return err
					}
				} else {
					cached.SetCoverURL(local)
				}
			}
		}
	}

	if s.Playlist != nil {
		if err := s.Playlist.Push(ctx, pk); err != nil {
			slog.Warn("cache sink: playlist push failed", "error", err)
		}
	}
	return nil
}
