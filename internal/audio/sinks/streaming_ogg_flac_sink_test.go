package sinks

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/arung-agamani/denpa-radio/internal/audio"
)

func TestStreamingOggFLACSinkEmitsChainedLogicalStreams(t *testing.T) {
	sink := NewStreamingOggFLACSink(2 * time.Second)
	sub := sink.Queue.Subscribe()

	in := make(chan *audio.Segment, 16)
	in <- audio.NewChunkSegment(0, 0, stereoChunk(256))
	in <- audio.NewChunkSegment(1, 0.01, stereoChunk(256))
	in <- audio.NewTrackBoundarySegment(2, 0.02, nil)
	in <- audio.NewChunkSegment(3, 0, stereoChunk(256))
	in <- audio.NewEndOfStreamSegment(4, 0.01)
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- sink.run(ctx, in, nil) }()

	var pages [][]byte
	for {
		payload, _, _, _, err := sub.Recv(ctx)
		if err != nil {
			break
		}
		pages = append(pages, payload)
	}
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(pages) == 0 {
		t.Fatal("expected at least one OGG page")
	}
	for i, p := range pages {
		if !bytes.HasPrefix(p, []byte("OggS")) {
			t.Fatalf("page %d does not start with the OggS capture pattern", i)
		}
	}
	// First logical stream: BOS, comment, 2 audio frames, EOS trailer.
	if pages[0][5] != oggHeaderBOS {
		t.Fatalf("expected first page to be flagged BOS, got header type %d", pages[0][5])
	}
}

func TestStreamingOggFLACSinkUnsupportedSampleType(t *testing.T) {
	sink := NewStreamingOggFLACSink(time.Second)
	in := make(chan *audio.Segment, 2)
	in <- audio.NewChunkSegment(0, 0, audio.NewF32Chunk(44100, make([]float32, 512)))
	close(in)

	if err := sink.run(context.Background(), in, nil); err == nil {
		t.Fatal("expected an error for a float chunk reaching the OGG-FLAC sink")
	}
}
