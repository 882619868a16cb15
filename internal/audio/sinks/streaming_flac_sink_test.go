package sinks

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/arung-agamani/denpa-radio/internal/audio"
	"github.com/arung-agamani/denpa-radio/internal/audio/broadcast"
)

func drainAll(t *testing.T, ctx context.Context, sub *broadcast.Subscription[[]byte]) [][]byte {
	t.Helper()
	var out [][]byte
	for {
		payload, _, _, _, err := sub.Recv(ctx)
		if err != nil {
			return out
		}
		out = append(out, payload)
	}
}

func TestStreamingFLACSinkEmitsHeaderThenBatchedFrames(t *testing.T) {
	sink := NewStreamingFLACSink(2 * time.Second)
	sub := sink.Queue.Subscribe()

	in := make(chan *audio.Segment, 32)
	for i := 0; i < 20; i++ {
		in <- audio.NewChunkSegment(uint64(i), float64(i)*0.01, stereoChunk(256))
	}
	in <- audio.NewEndOfStreamSegment(20, 0.2)
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- sink.run(ctx, in, nil) }()

	received := drainAll(t, ctx, sub)
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(received) == 0 {
		t.Fatal("expected at least one header/frame payload")
	}
	if !bytes.HasPrefix(received[0], []byte("fLaC")) {
		t.Fatalf("first received payload should be the cached FLAC header, got %x", received[0][:min(4, len(received[0]))])
	}
	if len(received) > 1 {
		// subsequent payloads are batched frame bytes, at least minSendBytes
		// each except possibly the final flush.
		for i := 1; i < len(received)-1; i++ {
			if len(received[i]) < minSendBytes {
				t.Errorf("payload %d smaller than minSendBytes: %d", i, len(received[i]))
			}
		}
	}
}

func TestStreamingFLACSinkDropsLateChunks(t *testing.T) {
	sink := NewStreamingFLACSink(2 * time.Second)

	in := make(chan *audio.Segment, 1)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- sink.run(ctx, in, nil) }()

	// ts=0 resets the pacer's reference clock to "now".
	in <- audio.NewChunkSegment(0, 0, stereoChunk(256))
	// Give real wall-clock time a chance to run ahead of the track clock,
	// then send a chunk timestamped behind it: CheckAndPace reports
	// ErrLate and the sink drops it instead of encoding it.
	time.Sleep(150 * time.Millisecond)
	in <- audio.NewChunkSegment(1, 0.12, stereoChunk(256))
	in <- audio.NewChunkSegment(2, 0.40, stereoChunk(256))
	in <- audio.NewEndOfStreamSegment(3, 0.40)
	close(in)

	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestStreamingFLACSinkResetsOnTrackBoundary(t *testing.T) {
	sink := NewStreamingFLACSink(2 * time.Second)
	sub := sink.Queue.Subscribe()

	in := make(chan *audio.Segment, 8)
	in <- audio.NewChunkSegment(0, 0, stereoChunk(256))
	in <- audio.NewTrackBoundarySegment(1, 0.1, nil)
	in <- audio.NewChunkSegment(2, 0, stereoChunk(256))
	in <- audio.NewEndOfStreamSegment(3, 0.1)
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- sink.run(ctx, in, nil) }()

	_ = drainAll(t, ctx, sub)
	if err := <-errCh; err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestStreamingFLACSinkStopsSendingOnceQueueClosed(t *testing.T) {
	sink := NewStreamingFLACSink(2 * time.Second)
	sink.Queue.Close()

	in := make(chan *audio.Segment, 4)
	in <- audio.NewChunkSegment(0, 0, stereoChunk(256))
	in <- audio.NewEndOfStreamSegment(1, 0)
	close(in)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sink.run(ctx, in, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
}

func TestStreamingFLACSinkUnsupportedSampleType(t *testing.T) {
	sink := NewStreamingFLACSink(time.Second)
	in := make(chan *audio.Segment, 2)
	in <- audio.NewChunkSegment(0, 0, audio.NewF32Chunk(44100, make([]float32, 512)))
	close(in)

	ctx := context.Background()
	if err := sink.run(ctx, in, nil); err == nil {
		t.Fatal("expected an error for a float chunk reaching the FLAC sink")
	}
}
