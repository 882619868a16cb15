package flacutil

import (
	"context"
	"errors"
	"time"
)

// ErrLate is returned by CheckAndPace when the caller's audio timestamp has
// already fallen behind wall-clock elapsed time; the caller should drop
// the associated data rather than send it.
var ErrLate = errors.New("flacutil: audio arrived behind the pacer's clock")

// BroadcastPacer keeps a streaming sink's output rate tethered to
// wall-clock time: it resets at the top of a stream, drops data that
// arrives too late to matter, and sleeps when the encoder has produced
// further ahead of wall-clock time than MaxLead allows.
type BroadcastPacer struct {
	maxLead      time.Duration
	label        string
	reference    time.Time
	hasReference bool

	now func() time.Time
}

// NewBroadcastPacer returns a pacer that never lets its output run more
// than maxLead ahead of wall-clock time. label is used only in log lines
// emitted by callers that embed a pacer; the pacer itself never logs.
func NewBroadcastPacer(maxLead time.Duration, label string) *BroadcastPacer {
	return &BroadcastPacer{maxLead: maxLead, label: label, now: time.Now}
}

func (p *BroadcastPacer) Label() string { return p.label }

// CheckAndPace applies the pacer's three ordered rules for a unit of audio
// at audioTimestamp seconds into the current track:
//
//  1. if audioTimestamp is within 0.1s of the top of the stream, the
//     pacer's reference clock is reset to now (top-of-stream reset);
//  2. otherwise, if audioTimestamp has already fallen behind the elapsed
//     wall-clock time since the reference, ErrLate is returned and the
//     caller should drop the data without sending it;
//  3. otherwise, if audioTimestamp runs more than MaxLead ahead of
//     elapsed time, the call blocks until the lead shrinks to MaxLead (or
//     ctx is cancelled).
func (p *BroadcastPacer) CheckAndPace(ctx context.Context, audioTimestamp float64) error {
	now := p.now()

	if audioTimestamp < 0.1 {
		p.reference = now
		p.hasReference = true
		return nil
	}

	if !p.hasReference {
		p.reference = now
		p.hasReference = true
	}

	elapsed := now.Sub(p.reference).Seconds()
	if audioTimestamp < elapsed {
		return ErrLate
	}

	lead := audioTimestamp - elapsed
	maxLeadSec := p.maxLead.Seconds()
	if lead <= maxLeadSec {
		return nil
	}

	sleep := time.Duration((lead - maxLeadSec) * float64(time.Second))
	timer := time.NewTimer(sleep)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset clears the pacer's reference clock, as if a fresh top-of-stream
// sync had just been observed.
func (p *BroadcastPacer) Reset() {
	p.hasReference = false
}
