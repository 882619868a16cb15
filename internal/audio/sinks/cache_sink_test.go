package sinks

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"

	"github.com/arung-agamani/denpa-radio/internal/audio"
	"github.com/arung-agamani/denpa-radio/internal/audiocache"
	"github.com/arung-agamani/denpa-radio/internal/metadata"
)

type fakeCache struct {
	mu       sync.Mutex
	spooled  map[string][]byte
	complete map[string]bool
	md       map[string]*metadata.Handle
}

func newFakeCache() *fakeCache {
	return &fakeCache{spooled: map[string][]byte{}, complete: map[string]bool{}, md: map[string]*metadata.Handle{}}
}

func (f *fakeCache) registerProvisional(pk string) *metadata.Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	if h, ok := f.md[pk]; ok {
		return h
	}
	h := metadata.New()
	f.md[pk] = h
	return h
}

func (f *fakeCache) AddFromReader(ctx context.Context, r io.Reader, hint *metadata.Handle) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	need := audiocache.FlacFixedHeaderLen + audiocache.PkPrefixLen
	prefix := data
	if len(prefix) > need {
		prefix = prefix[:need]
	}
	pk := audiocache.ComputePk(prefix)
	f.registerProvisional(pk)
	f.mu.Lock()
	f.spooled[pk] = data
	f.complete[pk] = true
	f.mu.Unlock()
	return pk, nil
}

func (f *fakeCache) TrackMetadata(ctx context.Context, pk string) (*metadata.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.md[pk], nil
}

func (f *fakeCache) IsDownloadComplete(ctx context.Context, pk string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.complete[pk], nil
}

func (f *fakeCache) AudioFilePath(ctx context.Context, pk string) (string, error) { return "", nil }

type fakePlaylist struct {
	mu     sync.Mutex
	pushed []string
}

func (p *fakePlaylist) Push(ctx context.Context, pk string) error {
	p.mu.Lock()
	p.pushed = append(p.pushed, pk)
	p.mu.Unlock()
	return nil
}

func stereoChunk(frames int) *audio.Chunk {
	samples := make([]int16, frames*2)
	for i := range samples {
		samples[i] = int16(i % 100)
	}
	return audio.NewI16Chunk(44100, samples)
}

func TestCacheSinkPublishesAfterPrebufferAndAtTrackEnd(t *testing.T) {
	cache := newFakeCache()
	playlist := &fakePlaylist{}
	sink := NewCacheSink(cache, nil).WithPlaylist(playlist)

	in := make(chan *audio.Segment, 16)
	md := metadata.New()
	md.SetTitle("Test Track")
	in <- audio.NewTrackBoundarySegment(0, 0, md)
	for i := 0; i < 5; i++ {
		in <- audio.NewChunkSegment(uint64(i), float64(i), stereoChunk(256))
	}
	in <- audio.NewEndOfStreamSegment(5, 5)
	close(in)

	err := sink.run(context.Background(), in, nil)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	playlist.mu.Lock()
	defer playlist.mu.Unlock()
	if len(playlist.pushed) != 1 {
		t.Fatalf("expected exactly one playlist push, got %d", len(playlist.pushed))
	}

	cache.mu.Lock()
	defer cache.mu.Unlock()
	data := cache.spooled[playlist.pushed[0]]
	if !bytes.HasPrefix(data, []byte("fLaC")) {
		t.Fatal("cached bytes do not start with the FLAC signature")
	}
}

func TestCacheSinkRejectsFloatChunksAtGraphConnectTime(t *testing.T) {
	sink := NewCacheSink(newFakeCache(), nil)
	node := sink.Node()
	if node.InputType.Accepts(audio.F32) {
		t.Fatal("cache sink's input type requirement should reject float chunks")
	}
	if !node.InputType.Accepts(audio.I16) {
		t.Fatal("cache sink's input type requirement should accept integer chunks")
	}
}
