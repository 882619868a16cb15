// Package pipeline implements the node-and-graph runtime that sources,
// transforms and sinks in this repository are built from: cooperative
// goroutines wired together with bounded channels, cancelled as a unit
// through a single context.
package pipeline

import (
	"context"

	"github.com/arung-agamani/denpa-radio/internal/audio"
)

// DefaultChannelSize is the bounded capacity used for a node's input
// channel unless a node overrides it.
const DefaultChannelSize = 32

// Kind classifies a node by where it sits in a graph.
type Kind int

const (
	KindSource Kind = iota
	KindTransform
	KindSink
)

func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindTransform:
		return "transform"
	case KindSink:
		return "sink"
	default:
		return "unknown"
	}
}

type reqKind int

const (
	reqAny reqKind = iota
	reqAnyInteger
	reqSpecific
	reqNone
)

// TypeRequirement constrains the sample type a node's input or output port
// will carry. None() marks a port that carries no Chunk data at all (a
// sink's non-existent output, or a sync-only control channel).
type TypeRequirement struct {
	kind   reqKind
	sample audio.SampleType
}

func Any() TypeRequirement                       { return TypeRequirement{kind: reqAny} }
func AnyInteger() TypeRequirement                 { return TypeRequirement{kind: reqAnyInteger} }
func Specific(t audio.SampleType) TypeRequirement { return TypeRequirement{kind: reqSpecific, sample: t} }
func None() TypeRequirement                       { return TypeRequirement{kind: reqNone} }

// Accepts reports whether a Chunk of sample type t satisfies this
// requirement.
func (r TypeRequirement) Accepts(t audio.SampleType) bool {
	switch r.kind {
	case reqAny:
		return true
	case reqAnyInteger:
		return t.IsInteger()
	case reqSpecific:
		return r.sample == t
	default:
		return false
	}
}

// compatibleWith reports whether data produced to requirement `out` can
// always satisfy requirement `in`. Used at graph-construction time to
// reject a miswired connection before any segment flows.
func compatibleWith(out, in TypeRequirement) bool {
	if in.kind == reqNone || out.kind == reqNone {
		return in.kind == reqNone && out.kind == reqNone
	}
	switch in.kind {
	case reqAny:
		return true
	case reqAnyInteger:
		return out.kind == reqAnyInteger || (out.kind == reqSpecific && out.sample.IsInteger())
	case reqSpecific:
		return out.kind == reqSpecific && out.sample == in.sample
	default:
		return false
	}
}

// Logic is the body of a node: it reads segments from in (nil for a
// source) until in is closed or ctx is cancelled, and writes to every
// channel in out (empty for a sink). Returning a non-nil error marks the
// node's Handle as failed; the graph runner cancels every other node's
// context in response.
type Logic func(ctx context.Context, in <-chan *audio.Segment, out []chan<- *audio.Segment) error

// Node is a single unit of pipeline work: a Logic function plus the type
// constraints its ports declare.
type Node struct {
	Kind        Kind
	Logic       Logic
	InputType   TypeRequirement
	OutputType  TypeRequirement
	ChannelSize int
}

func NewSource(logic Logic, outputType TypeRequirement) *Node {
	return &Node{Kind: KindSource, Logic: logic, InputType: None(), OutputType: outputType, ChannelSize: DefaultChannelSize}
}

func NewTransform(logic Logic, inputType, outputType TypeRequirement) *Node {
	return &Node{Kind: KindTransform, Logic: logic, InputType: inputType, OutputType: outputType, ChannelSize: DefaultChannelSize}
}

func NewSink(logic Logic, inputType TypeRequirement) *Node {
	return &Node{Kind: KindSink, Logic: logic, InputType: inputType, OutputType: None(), ChannelSize: DefaultChannelSize}
}

// Handle is returned by Start and lets the caller wait for a node's Logic
// to return.
type Handle struct {
	done chan error
}

// Wait blocks until the node's Logic function returns, and returns its
// error.
func (h *Handle) Wait() error { return <-h.done }

// Start runs a node's Logic in its own goroutine, closing every channel in
// out once Logic returns (whether it errored or not) so downstream nodes
// observe channel closure rather than hanging forever.
func (n *Node) Start(ctx context.Context, in <-chan *audio.Segment, out []chan<- *audio.Segment) *Handle {
	h := &Handle{done: make(chan error, 1)}
	go func() {
		err := n.Logic(ctx, in, out)
		for _, o := range out {
			close(o)
		}
		h.done <- err
	}()
	return h
}

// FanOut delivers seg to every channel in outs in turn, blocking on each
// one (no lossy fan-out: a slow sink backpressures the whole node) until
// ctx is cancelled.
func FanOut(ctx context.Context, seg *audio.Segment, outs []chan<- *audio.Segment) error {
	for _, o := range outs {
		select {
		case o <- seg:
		case <-ctx.Done():
			return audio.Cancelled(ctx.Err())
		}
	}
	return nil
}

// NewChannel allocates a node's input channel sized per ChannelSize (or
// DefaultChannelSize if unset).
func (n *Node) NewChannel() chan *audio.Segment {
	size := n.ChannelSize
	if size <= 0 {
		size = DefaultChannelSize
	}
	return make(chan *audio.Segment, size)
}
