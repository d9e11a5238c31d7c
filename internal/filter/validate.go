package filter

import (
	"math"

	"github.com/edgevec/edgevec/internal/everr"
)

const (
	maxDepth    = 32
	maxNodeCount = 1024
)

// Result is the structured validation outcome spec §4.3 requires:
// {valid, errors, warnings, compiled?}.
type Result struct {
	Valid      bool
	Errors     []error
	Warnings   []string
	Compiled   *Node
	Complexity int // clamped to [1,10]
}

// Validate bounds-checks a parsed AST (depth, node count) and folds
// constant subtrees, annotating the result with a complexity score. It
// does not check field/type compatibility — that is the evaluator's
// concern, since the metadata schema is per-vector and not static.
func Validate(root *Node) Result {
	var res Result

	if d := root.depth(); d > maxDepth {
		res.Errors = append(res.Errors, everr.New(everr.CodeNestingTooDeep, "filter nesting exceeds 32 levels", nil).
			WithPosition(root.Pos.Line, root.Pos.Column, root.Pos.Offset))
	}
	if n := root.count(); n > maxNodeCount {
		res.Errors = append(res.Errors, everr.New(everr.CodeExpressionTooComplex, "filter has more than 1024 nodes", nil).
			WithPosition(root.Pos.Line, root.Pos.Column, root.Pos.Offset))
	}

	if len(res.Errors) > 0 {
		res.Valid = false
		return res
	}

	folded := foldConstants(root)
	res.Valid = true
	res.Compiled = folded
	res.Complexity = complexityOf(folded)
	return res
}

// Compile parses and validates src in one step, per spec §4.3's
// {valid, errors, warnings, compiled?} contract.
func Compile(src string) Result {
	root, err := Parse(src)
	if err != nil {
		return Result{Valid: false, Errors: []error{err}}
	}
	return Validate(root)
}

// foldConstants recursively evaluates literal-only subtrees, collapsing
// them to a single LiteralBool node. AND/OR also fold when just one
// operand is a literal bool: false AND x and true OR x become that
// literal, while true AND x and false OR x become x. Subtrees with no
// literal operand are left as they are.
func foldConstants(n *Node) *Node {
	if n == nil || n.isLiteral() || n.Kind == NodeField {
		return n
	}
	children := make([]*Node, len(n.Children))
	allLiteral := true
	for i, c := range n.Children {
		children[i] = foldConstants(c)
		if !children[i].isLiteral() {
			allLiteral = false
		}
	}
	folded := &Node{Kind: n.Kind, Pos: n.Pos, Field: n.Field, Children: children}

	if n.Kind == NodeAnd || n.Kind == NodeOr || n.Kind == NodeNot {
		if allLiteral {
			if v, ok := evalLiteralLogic(n.Kind, children); ok {
				return &Node{Kind: NodeLiteralBool, Pos: n.Pos, Bool: v}
			}
		}
		// Short-circuit folding even when only one side is a known constant.
		if n.Kind == NodeAnd {
			if b, ok := literalBool(children[0]); ok {
				if !b {
					return &Node{Kind: NodeLiteralBool, Pos: n.Pos, Bool: false}
				}
				return children[1]
			}
			if b, ok := literalBool(children[1]); ok {
				if !b {
					return &Node{Kind: NodeLiteralBool, Pos: n.Pos, Bool: false}
				}
				return children[0]
			}
		}
		if n.Kind == NodeOr {
			if b, ok := literalBool(children[0]); ok {
				if b {
					return &Node{Kind: NodeLiteralBool, Pos: n.Pos, Bool: true}
				}
				return children[1]
			}
			if b, ok := literalBool(children[1]); ok {
				if b {
					return &Node{Kind: NodeLiteralBool, Pos: n.Pos, Bool: true}
				}
				return children[0]
			}
		}
	}

	return folded
}

func literalBool(n *Node) (bool, bool) {
	if n.Kind == NodeLiteralBool {
		return n.Bool, true
	}
	return false, false
}

func evalLiteralLogic(kind NodeKind, children []*Node) (bool, bool) {
	switch kind {
	case NodeNot:
		b, ok := literalBool(children[0])
		return !b, ok
	case NodeAnd:
		a, ok1 := literalBool(children[0])
		b, ok2 := literalBool(children[1])
		return a && b, ok1 && ok2
	case NodeOr:
		a, ok1 := literalBool(children[0])
		b, ok2 := literalBool(children[1])
		return a || b, ok1 && ok2
	}
	return false, false
}

// IsTautology reports whether root folds to LiteralBool(true).
func IsTautology(root *Node) bool {
	return root.Kind == NodeLiteralBool && root.Bool
}

// IsContradiction reports whether root folds to LiteralBool(false).
func IsContradiction(root *Node) bool {
	return root.Kind == NodeLiteralBool && !root.Bool
}

// complexityOf implements spec §4.3's clamped log2(node_count)+depth_bonus,
// in [1,10].
func complexityOf(n *Node) int {
	count := n.count()
	depth := n.depth()
	score := math.Log2(float64(count)) + float64(depth)/4
	v := int(math.Round(score))
	if v < 1 {
		v = 1
	}
	if v > 10 {
		v = 10
	}
	return v
}
