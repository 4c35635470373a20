// Package draw renders a layered network as a graphviz graph: one
// column of nodes per layer, an edge per weight, and a loss node fed
// by the output layer.
package draw

import (
	"github.com/emicklei/dot"
	"github.com/stevegt/fpalgo"
	. "github.com/stevegt/goadapt"
)

// Highlight marks the connection from neuron From of layer Layer-1
// (or input From, for Layer 0) to neuron To of layer Layer, the way
// a backprop walkthrough singles out A[i-1], Z[i] and W[i].
type Highlight struct {
	Layer int
	From  int
	To    int
}

// Options controls what Graph draws.
type Options struct {
	// Title is the graph name.
	Title string
	// InputNames and OutputNames label the outer columns; missing
	// names fall back to x0, x1, ... and y0, y1, ...
	InputNames  []string
	OutputNames []string
	// Weights labels every edge with its weight.
	Weights bool
	// Loss adds a loss node after the output layer.
	Loss bool
	// Highlight, if set, colors one connection and its endpoints.
	Highlight *Highlight
}

const (
	nodeColor      = "skyblue"
	highlightColor = "orange"
	edgeColor      = "gray"
	focusColor     = "red"
)

// Graph builds a left-to-right graph of the network described by p.
func Graph(p *fpalgo.Params, opts Options) (g *dot.Graph) {
	Assert(p.Check() == nil, "bad params")
	title := opts.Title
	if title == "" {
		title = "network"
	}
	g = dot.NewGraph(dot.Directed)
	g.Attr("label", title)
	g.Attr("rankdir", "LR")
	g.Attr("splines", "line")

	hl := opts.Highlight
	// columns[c] holds the nodes of column c: c == 0 is the input,
	// c == l+1 is layer l
	columns := make([][]dot.Node, p.Layers()+1)

	inputs := g.Subgraph("input", dot.ClusterOption{})
	for j := 0; j < p.InputCount(); j++ {
		label := name(opts.InputNames, "x", j)
		n := inputs.Node(Spf("in_%d", j)).Label(label).Attr("shape", "circle")
		n = paint(n, hl != nil && hl.Layer == 0 && hl.From == j)
		columns[0] = append(columns[0], n)
	}

	last := p.Layers() - 1
	for l, w := range p.Weights {
		sub := g.Subgraph(Spf("layer%d", l), dot.ClusterOption{})
		if l == last {
			sub.Attr("label", Spf("layer %d: normalize", l))
		} else {
			sub.Attr("label", Spf("layer %d: squash", l))
		}
		for i := range w {
			label := Spf("%d.%d", l, i)
			if l == last {
				label = name(opts.OutputNames, "y", i)
			}
			n := sub.Node(Spf("l%d_%d", l, i)).Label(label).Attr("shape", "circle")
			focus := hl != nil && (hl.Layer == l && hl.To == i || hl.Layer == l+1 && hl.From == i)
			n = paint(n, focus)
			columns[l+1] = append(columns[l+1], n)
		}
	}

	for l, w := range p.Weights {
		for i, row := range w {
			for j, wij := range row {
				e := g.Edge(columns[l][j], columns[l+1][i])
				if opts.Weights {
					e.Label(Spf("%.3f", wij))
				}
				if hl != nil && hl.Layer == l && hl.From == j && hl.To == i {
					e.Attr("color", focusColor).Attr("penwidth", "2")
				} else {
					e.Attr("color", edgeColor)
				}
			}
		}
	}

	if opts.Loss {
		loss := g.Node("loss").Label("Loss").Attr("shape", "box").Attr("fontcolor", focusColor)
		for _, out := range columns[last+1] {
			g.Edge(out, loss).Attr("color", focusColor).Attr("style", "dashed")
		}
	}
	return
}

// Dot returns the graphviz source for Graph(p, opts).
func Dot(p *fpalgo.Params, opts Options) string {
	return Graph(p, opts).String()
}

func paint(n dot.Node, focus bool) dot.Node {
	n = n.Attr("style", "filled")
	if focus {
		return n.Attr("fillcolor", highlightColor)
	}
	return n.Attr("fillcolor", nodeColor)
}

func name(names []string, prefix string, i int) string {
	if i < len(names) {
		return names[i]
	}
	return Spf("%s%d", prefix, i)
}
