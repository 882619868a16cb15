package sources

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/arung-agamani/denpa-radio/internal/audio"
	"github.com/arung-agamani/denpa-radio/internal/metadata"
)

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[int]int{0: 1, 1: 1, 2: 2, 3: 4, 2205: 4096, 4096: 4096}
	for in, want := range cases {
		if got := nextPowerOfTwo(in); got != want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestSampleTypeForRejectsUnsupportedDepth(t *testing.T) {
	if _, err := sampleTypeFor(8); err == nil {
		t.Fatal("expected an error for an 8-bit depth")
	}
	for bits, want := range map[int]audio.SampleType{16: audio.I16, 24: audio.I24, 32: audio.I32} {
		got, err := sampleTypeFor(bits)
		if err != nil || got != want {
			t.Errorf("sampleTypeFor(%d) = (%v, %v), want (%v, nil)", bits, got, err, want)
		}
	}
}

type fakeCache struct{ complete bool }

func (f *fakeCache) AddFromReader(ctx context.Context, r io.Reader, hint *metadata.Handle) (string, error) {
	return "", nil
}
func (f *fakeCache) TrackMetadata(ctx context.Context, pk string) (*metadata.Handle, error) {
	return nil, nil
}
func (f *fakeCache) IsDownloadComplete(ctx context.Context, pk string) (bool, error) {
	return f.complete, nil
}
func (f *fakeCache) AudioFilePath(ctx context.Context, pk string) (string, error) { return "", nil }

func TestTailReaderWaitsThenReportsCompletion(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/track.flac"
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := f.WriteString("abc"); err != nil {
		t.Fatalf("WriteString: %v", err)
	}
	f.Close()

	r, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	cache := &fakeCache{complete: false}
	tr := &tailReader{ctx: context.Background(), r: r, cache: cache, pk: "pk", retryInterval: 5 * time.Millisecond}

	buf := make([]byte, 16)
	n, err := tr.Read(buf)
	if err != nil || n != 3 {
		t.Fatalf("first Read = (%d, %v), want (3, nil)", n, err)
	}

	done := make(chan struct{})
	go func() {
		_, err := tr.Read(buf)
		if err != io.EOF {
			t.Errorf("Read after completion = %v, want io.EOF", err)
		}
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cache.complete = true

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("tailReader never observed download completion")
	}
}

func TestTailReaderHonorsCancellation(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/track.flac"
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	r, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()

	ctx, cancel := context.WithCancel(context.Background())
	tr := &tailReader{ctx: ctx, r: r, cache: &fakeCache{complete: false}, pk: "pk", retryInterval: time.Second}

	done := make(chan error, 1)
	go func() {
		_, err := tr.Read(make([]byte, 16))
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("expected Read to return an error once the context was cancelled")
		}
	case <-time.After(time.Second):
		t.Fatal("tailReader did not honor cancellation")
	}
}
