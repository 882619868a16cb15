package flacutil

import (
	"context"
	"testing"
	"time"
)

// buildFrame assembles a minimal fixed-blocksize FLAC frame header
// (blockSizeCode 0x01 = 192 samples, sampleRateCode 0x00 = from STREAMINFO,
// frame number 0) with a correct trailing CRC-8, followed by n bytes of
// arbitrary "audio data" that must not itself parse as a valid header.
func buildFrame(frameNum byte, data ...byte) []byte {
	header := []byte{0xFF, 0xF8, 0x10, 0x00, frameNum}
	header = append(header, crc8(header))
	return append(header, data...)
}

func TestFindCompleteFramesWithSamplesNeedsTwoHeaders(t *testing.T) {
	buf := buildFrame(0, 0x00, 0x01, 0x02)
	boundary, samples := FindCompleteFramesWithSamples(buf)
	if boundary != 0 || samples != 0 {
		t.Fatalf("single frame with no following header should report no complete frame, got (%d, %d)", boundary, samples)
	}
}

func TestFindCompleteFramesWithSamplesFindsBoundaryAtSecondHeader(t *testing.T) {
	frame0 := buildFrame(0, 0x00, 0x01)
	frame1 := buildFrame(1, 0x02, 0x03)
	buf := append(append([]byte{}, frame0...), frame1...)

	boundary, samples := FindCompleteFramesWithSamples(buf)
	if boundary != len(frame0) {
		t.Fatalf("boundary = %d, want %d (start of second frame)", boundary, len(frame0))
	}
	if samples != 192 {
		t.Fatalf("samples = %d, want 192", samples)
	}
}

func TestFindCompleteFramesWithSamplesIsIdempotent(t *testing.T) {
	frame0 := buildFrame(0)
	frame1 := buildFrame(1)
	buf := append(append([]byte{}, frame0...), frame1...)

	b1, s1 := FindCompleteFramesWithSamples(buf)
	b2, s2 := FindCompleteFramesWithSamples(buf)
	if b1 != b2 || s1 != s2 {
		t.Fatalf("scan is not deterministic: (%d,%d) != (%d,%d)", b1, s1, b2, s2)
	}
}

func TestFindCompleteFramesWithSamplesMonotonicUnderAppend(t *testing.T) {
	frame0 := buildFrame(0)
	frame1 := buildFrame(1)
	frame2 := buildFrame(2)

	partial := append(append([]byte{}, frame0...), frame1...)
	b1, _ := FindCompleteFramesWithSamples(partial)

	full := append(append([]byte{}, partial...), frame2...)
	b2, _ := FindCompleteFramesWithSamples(full)

	if b2 < b1 {
		t.Fatalf("boundary regressed after appending more data: %d -> %d", b1, b2)
	}
}

func TestFindCompleteFramesWithSamplesRejectsBadCRC(t *testing.T) {
	good := buildFrame(0)
	corrupt := append([]byte{}, good...)
	corrupt[len(corrupt)-1] ^= 0xFF // flip the CRC byte

	buf := append(append([]byte{}, corrupt...), good...)
	boundary, _ := FindCompleteFramesWithSamples(buf)
	if boundary != 0 {
		t.Fatalf("a corrupted first header should never be counted, got boundary %d", boundary)
	}
}

func TestBroadcastPacerResetsAtTopOfStream(t *testing.T) {
	p := NewBroadcastPacer(2*time.Second, "test")
	if err := p.CheckAndPace(context.Background(), 0.0); err != nil {
		t.Fatalf("top-of-stream reset should never error: %v", err)
	}
}

func TestBroadcastPacerDropsLateData(t *testing.T) {
	p := NewBroadcastPacer(2*time.Second, "test")
	p.reference = time.Now().Add(-10 * time.Second)
	p.hasReference = true

	if err := p.CheckAndPace(context.Background(), 1.0); err != ErrLate {
		t.Fatalf("expected ErrLate for data 9s behind elapsed time, got %v", err)
	}
}

func TestBroadcastPacerSleepsWhenTooFarAhead(t *testing.T) {
	p := NewBroadcastPacer(10*time.Millisecond, "test")
	p.reference = time.Now()
	p.hasReference = true

	start := time.Now()
	if err := p.CheckAndPace(context.Background(), 0.15); err != nil {
		t.Fatalf("CheckAndPace: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Fatalf("expected CheckAndPace to sleep out the surplus lead, only took %v", elapsed)
	}
}

func TestBroadcastPacerHonorsCancellation(t *testing.T) {
	p := NewBroadcastPacer(time.Millisecond, "test")
	p.reference = time.Now()
	p.hasReference = true

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.CheckAndPace(ctx, 5.0); err == nil {
		t.Fatal("expected a cancelled context to interrupt a pending sleep")
	}
}
