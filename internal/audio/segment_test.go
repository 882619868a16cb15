package audio

import "testing"

func TestChunkFramesCountsStereoPairs(t *testing.T) {
	c := NewI16Chunk(44100, []int16{1, 2, 3, 4, 5, 6})
	if got, want := c.Frames(), 3; got != want {
		t.Fatalf("Frames() = %d, want %d", got, want)
	}
}

func TestMustBeStereoPanicsOnOddLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic constructing an odd-length chunk")
		}
	}()
	NewI16Chunk(44100, []int16{1, 2, 3})
}

func TestSegmentIsEitherChunkOrSync(t *testing.T) {
	chunkSeg := NewChunkSegment(0, 0, NewI16Chunk(44100, []int16{0, 0}))
	if !chunkSeg.IsChunk() || chunkSeg.IsSync() {
		t.Fatal("chunk segment must report IsChunk and not IsSync")
	}

	syncSeg := NewEndOfStreamSegment(1, 12.5)
	if syncSeg.IsChunk() || !syncSeg.IsSync() {
		t.Fatal("sync segment must report IsSync and not IsChunk")
	}
	if !syncSeg.IsEndOfStream() {
		t.Fatal("expected IsEndOfStream to hold for an EndOfStream marker")
	}
}

func TestTrackBoundaryCarriesMetadataHandle(t *testing.T) {
	seg := NewTrackBoundarySegment(0, 0, nil)
	md, ok := seg.AsTrackBoundary()
	if !ok {
		t.Fatal("expected AsTrackBoundary to recognize a TrackBoundary segment")
	}
	if md != nil {
		t.Fatal("expected nil metadata handle to round-trip as nil")
	}

	notBoundary := NewHeartbeatSegment(0, 0)
	if _, ok := notBoundary.AsTrackBoundary(); ok {
		t.Fatal("expected AsTrackBoundary to reject a Heartbeat segment")
	}
}

func TestSampleTypeIntegerClassification(t *testing.T) {
	for _, tc := range []struct {
		typ  SampleType
		want bool
	}{
		{I16, true}, {I24, true}, {I32, true}, {F32, false}, {F64, false},
	} {
		if got := tc.typ.IsInteger(); got != tc.want {
			t.Errorf("%v.IsInteger() = %v, want %v", tc.typ, got, tc.want)
		}
	}
}
