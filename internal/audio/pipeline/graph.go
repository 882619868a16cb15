package pipeline

import (
	"context"

	"github.com/arung-agamani/denpa-radio/internal/audio"
)

// Graph wires Nodes together and runs them all under one cancellation
// context. A single Segment's fan-out to multiple downstream nodes (e.g. a
// cache-ingest sink and a streaming sink reading the same source) is
// expressed by connecting more than one node to the same upstream Node.
type Graph struct {
	nodes []*Node
	edges map[*Node][]*Node
}

func NewGraph() *Graph {
	return &Graph{edges: make(map[*Node][]*Node)}
}

// Add registers a node with the graph. A node must be added before it can
// be used as either end of a Connect call.
func (g *Graph) Add(n *Node) *Node {
	g.nodes = append(g.nodes, n)
	return n
}

// Connect wires from's output to to's input, validating that to's input
// type requirement accepts everything from's output type requirement can
// produce. Connecting a single `from` to multiple `to` nodes fans the
// segment stream out to all of them.
func (g *Graph) Connect(from, to *Node) error {
	if !compatibleWith(from.OutputType, to.InputType) {
		return audio.Processingf("pipeline: incompatible connection: %s output cannot satisfy %s input", from.Kind, to.Kind)
	}
	g.edges[from] = append(g.edges[from], to)
	return nil
}

// runningNode pairs a started node with the Handle Run waits on.
type runningNode struct {
	node   *Node
	handle *Handle
}

// Run starts every node added to the graph, connecting each one's output
// channels to its declared downstream nodes' input channels, and blocks
// until all nodes have returned. It returns the first non-nil error
// observed, after cancelling ctx's derived child so every other node
// unwinds promptly.
func (g *Graph) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	inputs := make(map[*Node]chan *audio.Segment)
	for _, n := range g.nodes {
		if n.Kind != KindSource {
			inputs[n] = n.NewChannel()
		}
	}

	var running []runningNode
	for _, n := range g.nodes {
		var in <-chan *audio.Segment
		if ch, ok := inputs[n]; ok {
			in = ch
		}

		downstream := g.edges[n]
		outs := make([]chan<- *audio.Segment, 0, len(downstream))
		for _, d := range downstream {
			outs = append(outs, inputs[d])
		}

		h := n.Start(runCtx, in, outs)
		running = append(running, runningNode{node: n, handle: h})
	}

	errs := make(chan error, len(running))
	for _, r := range running {
		go func(h *Handle) {
			err := h.Wait()
			if err != nil {
				cancel()
			}
			errs <- err
		}(r.handle)
	}

	var firstErr error
	for range running {
		if err := <-errs; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
