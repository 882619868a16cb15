package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/arung-agamani/denpa-radio/internal/audio"
)

func TestGraphFanOutDeliversToAllDownstream(t *testing.T) {
	g := NewGraph()

	source := g.Add(NewSource(func(ctx context.Context, in <-chan *audio.Segment, out []chan<- *audio.Segment) error {
		seg := audio.NewChunkSegment(0, 0, audio.NewI16Chunk(44100, []int16{1, 2}))
		if err := FanOut(ctx, seg, out); err != nil {
			return err
		}
		return nil
	}, AnyInteger()))

	received := make(chan *audio.Segment, 1)
	sinkA := g.Add(NewSink(func(ctx context.Context, in <-chan *audio.Segment, out []chan<- *audio.Segment) error {
		for seg := range in {
			received <- seg
		}
		return nil
	}, AnyInteger()))

	drained := make(chan struct{})
	sinkB := g.Add(NewSink(func(ctx context.Context, in <-chan *audio.Segment, out []chan<- *audio.Segment) error {
		for range in {
		}
		close(drained)
		return nil
	}, AnyInteger()))

	if err := g.Connect(source, sinkA); err != nil {
		t.Fatalf("Connect(source, sinkA): %v", err)
	}
	if err := g.Connect(source, sinkB); err != nil {
		t.Fatalf("Connect(source, sinkB): %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- g.Run(context.Background()) }()

	select {
	case seg := <-received:
		if !seg.IsChunk() {
			t.Fatal("expected sinkA to receive the chunk segment")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sinkA to receive a segment")
	}

	select {
	case <-drained:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for sinkB to drain")
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for graph to finish")
	}
}

func TestConnectRejectsIncompatibleTypes(t *testing.T) {
	g := NewGraph()
	source := g.Add(NewSource(nil, Specific(audio.F32)))
	sink := g.Add(NewSink(nil, AnyInteger()))

	if err := g.Connect(source, sink); err == nil {
		t.Fatal("expected Connect to reject an F32 source feeding an integer-only sink")
	}
}

func TestGraphCancellationStopsSource(t *testing.T) {
	g := NewGraph()
	started := make(chan struct{})
	source := g.Add(NewSource(func(ctx context.Context, in <-chan *audio.Segment, out []chan<- *audio.Segment) error {
		close(started)
		<-ctx.Done()
		return audio.Cancelled(ctx.Err())
	}, Any()))
	sink := g.Add(NewSink(func(ctx context.Context, in <-chan *audio.Segment, out []chan<- *audio.Segment) error {
		for range in {
		}
		return nil
	}, Any()))
	if err := g.Connect(source, sink); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- g.Run(ctx) }()

	<-started
	cancel()

	select {
	case err := <-done:
		if !audio.IsCancelled(err) {
			t.Fatalf("expected a Cancelled error, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for cancellation to propagate")
	}
}
