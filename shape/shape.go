package shape

import (
	"strconv"
	"strings"

	. "github.com/stevegt/goadapt"
	"github.com/xiam/sexpr/ast"
	"github.com/xiam/sexpr/parser"
)

// Activation names.  Every hidden layer squashes and the output layer
// normalizes.
const (
	Squash    = "squash"
	Normalize = "normalize"
)

// Shape is a representation of the network's shape, e.g.
//
//	(xor x0 x1 (squash 4) (normalize y0 y1))
//
// is a net named xor with inputs x0 and x1, one hidden layer of four
// squashing nodes, and two normalized outputs y0 and y1.
type Shape struct {
	Name        string
	InputNames  []string
	OutputNames []string
	LayerShapes []*LayerShape
}

// LayerShape is one layer: its activation and either a node count or
// the names of its nodes.
type LayerShape struct {
	ActivationName string
	Size           int
	Names          []string
}

func (s *Shape) String() (out string) {
	parts := []string{s.Name}
	parts = append(parts, s.InputNames...)
	for _, layer := range s.LayerShapes {
		parts = append(parts, layer.String())
	}
	out = Spf("(%s)", strings.Join(parts, " "))
	return
}

func (s *LayerShape) String() (out string) {
	if len(s.Names) > 0 {
		return Spf("(%s %s)", s.ActivationName, strings.Join(s.Names, " "))
	}
	return Spf("(%s %d)", s.ActivationName, s.Size)
}

// LayerSizes returns the node count of each layer.
func (s *Shape) LayerSizes() (sizes []int) {
	for _, layer := range s.LayerShapes {
		sizes = append(sizes, layer.Size)
	}
	return
}

// setOutputNames copies the output layer's node names, if it has any.
func (s *Shape) setOutputNames() {
	lastLayer := s.LayerShapes[len(s.LayerShapes)-1]
	s.OutputNames = append([]string{}, lastLayer.Names...)
}

// SyntaxError is a syntax error.
type SyntaxError struct {
	msg  string
	node *ast.Node
}

func (e *SyntaxError) Error() string {
	return Spf("[shape:%s] %s:\n%s", e.node.Token().Pos, e.msg, e.node.String())
}

// synck returns a syntax error if cond is false.
func synck(node *ast.Node, cond bool, args ...interface{}) error {
	if cond {
		return nil
	}
	return &SyntaxError{FormatArgs(args...), node}
}

// Parse parses a shape expression.
func Parse(txt string) (s *Shape, err error) {
	defer Return(&err)
	root, err := parser.Parse([]byte(txt))
	Ck(err)

	// root is a list
	if err = synck(root, root.Type() == ast.NodeTypeList, "root is not a list"); err != nil {
		return nil, err
	}
	// root has one child
	children := root.List()
	if err = synck(root, len(children) == 1, "root has %d children", len(children)); err != nil {
		return nil, err
	}
	// root's child is an expression
	expr := children[0]
	if err = synck(expr, expr.Type() == ast.NodeTypeExpression, "root's child is not an expression"); err != nil {
		return nil, err
	}
	return parseShape(expr)
}

// expr is a parsed s-expression: an operator and its arguments.
type expr struct {
	op   string
	args []expr
	node *ast.Node
}

func parseShape(n *ast.Node) (s *Shape, err error) {
	e, err := parseExpr(n)
	if err != nil {
		return nil, err
	}
	s = &Shape{Name: e.op}
	seen := map[string]bool{}
	for _, arg := range e.args {
		if arg.args == nil {
			if len(s.LayerShapes) > 0 {
				return nil, synck(arg.node, false, "input name %s after first layer", arg.op)
			}
			if seen[arg.op] {
				return nil, synck(arg.node, false, "duplicate input name %s", arg.op)
			}
			seen[arg.op] = true
			s.InputNames = append(s.InputNames, arg.op)
			continue
		}
		layerShape, err := parseLayer(arg)
		if err != nil {
			return nil, err
		}
		s.LayerShapes = append(s.LayerShapes, layerShape)
	}
	if err = synck(n, len(s.InputNames) > 0, "no inputs"); err != nil {
		return nil, err
	}
	if err = synck(n, len(s.LayerShapes) > 0, "no layers"); err != nil {
		return nil, err
	}
	last := len(s.LayerShapes) - 1
	for i, layer := range s.LayerShapes {
		want := Squash
		if i == last {
			want = Normalize
		}
		if layer.ActivationName != want {
			return nil, synck(n, false, "layer %d: want %s, got %s", i, want, layer.ActivationName)
		}
		if i < last && len(layer.Names) > 0 {
			return nil, synck(n, false, "layer %d: only the output layer has named nodes", i)
		}
	}
	s.setOutputNames()
	return
}

func parseLayer(e expr) (layerShape *LayerShape, err error) {
	if err = synck(e.node, len(e.args) > 0, "layer %s has no nodes", e.op); err != nil {
		return
	}
	layerShape = &LayerShape{ActivationName: e.op}
	seen := map[string]bool{}
	for _, nodeExpr := range e.args {
		if err = synck(nodeExpr.node, nodeExpr.args == nil, "nested expression in layer %s", e.op); err != nil {
			return nil, err
		}
		// nodeExpr.op is either a node count or an output name
		count, convErr := strconv.Atoi(nodeExpr.op)
		if convErr != nil {
			if seen[nodeExpr.op] {
				return nil, synck(nodeExpr.node, false, "duplicate node name %s in layer %s", nodeExpr.op, e.op)
			}
			seen[nodeExpr.op] = true
			layerShape.Names = append(layerShape.Names, nodeExpr.op)
			continue
		}
		if err = synck(nodeExpr.node, len(e.args) == 1, "layer %s mixes a count with other nodes", e.op); err != nil {
			return nil, err
		}
		if err = synck(nodeExpr.node, count > 0, "layer %s has %d nodes", e.op, count); err != nil {
			return nil, err
		}
		layerShape.Size = count
	}
	if len(layerShape.Names) > 0 {
		layerShape.Size = len(layerShape.Names)
	}
	return
}

func parseExpr(n *ast.Node) (e *expr, err error) {
	children := n.List()
	if err = synck(n, len(children) > 0, "missing opcode"); err != nil {
		return
	}
	if err = synck(n, children[0].Type() == ast.NodeTypeSymbol, "first word is not a symbol"); err != nil {
		return
	}
	e = &expr{op: children[0].Encode(), args: []expr{}, node: n}
	for i := 1; i < len(children); i++ {
		child := children[i]
		switch child.Type() {
		case ast.NodeTypeSymbol, ast.NodeTypeInt, ast.NodeTypeFloat, ast.NodeTypeString:
			e.args = append(e.args, expr{op: child.Encode(), node: child})
		case ast.NodeTypeExpression:
			arg, err := parseExpr(child)
			if err != nil {
				return nil, err
			}
			e.args = append(e.args, *arg)
		default:
			return nil, synck(child, false, "unknown node type %v", child.Type())
		}
	}
	return
}
