package filter

import (
	"strings"

	"github.com/edgevec/edgevec/internal/metadata"
)

// Tri is SQL three-valued logic's result (spec §4.3): the outer search
// treats Unknown as False, but And/Or/Not propagate it per the standard
// Kleene truth tables.
type Tri int

const (
	Unknown Tri = iota
	True
	False
)

func triFromBool(b bool) Tri {
	if b {
		return True
	}
	return False
}

// Lookup resolves a field name to its metadata value for one vector.
// Returning ok=false models SQL NULL (the key is absent).
type Lookup func(field string) (metadata.Value, bool)

// Eval evaluates a compiled (folded) AST against one vector's metadata
// view, returning a three-valued result.
func Eval(n *Node, lookup Lookup) Tri {
	switch n.Kind {
	case NodeLiteralBool:
		return triFromBool(n.Bool)

	case NodeAnd:
		l, r := Eval(n.Children[0], lookup), Eval(n.Children[1], lookup)
		return triAnd(l, r)
	case NodeOr:
		l, r := Eval(n.Children[0], lookup), Eval(n.Children[1], lookup)
		return triOr(l, r)
	case NodeNot:
		return triNot(Eval(n.Children[0], lookup))

	case NodeEq, NodeNe, NodeLt, NodeLe, NodeGt, NodeGe:
		return evalComparison(n, lookup)

	case NodeContains, NodeStartsWith, NodeEndsWith, NodeLike:
		return evalStringPredicate(n, lookup)

	case NodeIn, NodeNotIn:
		return evalMembership(n, lookup)

	case NodeAny, NodeAll, NodeNone:
		return evalArrayPredicate(n, lookup)

	case NodeIsNull, NodeIsNotNull:
		field := n.Children[0]
		_, present := lookup(field.Field)
		isNull := !present
		if n.Kind == NodeIsNull {
			return triFromBool(isNull)
		}
		return triFromBool(!isNull)

	case NodeBetween:
		return evalBetween(n, lookup)
	}

	return Unknown
}

func triAnd(a, b Tri) Tri {
	if a == False || b == False {
		return False
	}
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return True
}

func triOr(a, b Tri) Tri {
	if a == True || b == True {
		return True
	}
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return False
}

func triNot(a Tri) Tri {
	switch a {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// scalar is a dynamically-typed comparable value resolved from either a
// field lookup or a literal node.
type scalar struct {
	kind NodeKind // NodeLiteralString/Int/Float/Bool, or NodeLiteralArray
	str  string
	i    int64
	f    float64
	b    bool
	arr  []string
}

func resolveOperand(n *Node, lookup Lookup) (scalar, bool) {
	switch n.Kind {
	case NodeField:
		v, ok := lookup(n.Field)
		if !ok {
			return scalar{}, false
		}
		return scalarFromMetadata(v), true
	case NodeLiteralString:
		return scalar{kind: NodeLiteralString, str: n.Str}, true
	case NodeLiteralInt:
		return scalar{kind: NodeLiteralInt, i: n.Int}, true
	case NodeLiteralFloat:
		return scalar{kind: NodeLiteralFloat, f: n.Flt}, true
	case NodeLiteralBool:
		return scalar{kind: NodeLiteralBool, b: n.Bool}, true
	case NodeLiteralArray:
		return scalarFromArray(n), true
	}
	return scalar{}, false
}

func scalarFromMetadata(v metadata.Value) scalar {
	switch v.Kind {
	case metadata.KindString:
		return scalar{kind: NodeLiteralString, str: v.Str}
	case metadata.KindInteger:
		return scalar{kind: NodeLiteralInt, i: v.Int}
	case metadata.KindFloat:
		return scalar{kind: NodeLiteralFloat, f: v.Float}
	case metadata.KindBoolean:
		return scalar{kind: NodeLiteralBool, b: v.Bool}
	case metadata.KindStringArray:
		return scalar{kind: NodeLiteralArray, arr: v.StringArray}
	}
	return scalar{}
}

func scalarFromArray(n *Node) scalar {
	out := make([]string, len(n.Array))
	for i, e := range n.Array {
		out[i] = elemToString(e)
	}
	return scalar{kind: NodeLiteralArray, arr: out}
}

func elemToString(e ArrayElem) string {
	switch e.Kind {
	case NodeLiteralString:
		return e.Str
	default:
		return ""
	}
}

// asFloat coerces numeric scalars for comparison (Integer<->Float
// coercion is the only cross-type comparison spec §4.3 allows).
func (s scalar) asFloat() (float64, bool) {
	switch s.kind {
	case NodeLiteralInt:
		return float64(s.i), true
	case NodeLiteralFloat:
		return s.f, true
	}
	return 0, false
}

func evalComparison(n *Node, lookup Lookup) Tri {
	l, lok := resolveOperand(n.Children[0], lookup)
	r, rok := resolveOperand(n.Children[1], lookup)
	if !lok || !rok {
		return Unknown
	}

	cmp, ok := compareScalars(l, r)
	if !ok {
		return Unknown
	}
	switch n.Kind {
	case NodeEq:
		return triFromBool(cmp == 0)
	case NodeNe:
		return triFromBool(cmp != 0)
	case NodeLt:
		return triFromBool(cmp < 0)
	case NodeLe:
		return triFromBool(cmp <= 0)
	case NodeGt:
		return triFromBool(cmp > 0)
	case NodeGe:
		return triFromBool(cmp >= 0)
	}
	return Unknown
}

// compareScalars returns -1/0/1, or ok=false when the types are
// incompatible (neither equal kinds nor both numeric).
func compareScalars(a, b scalar) (int, bool) {
	if a.kind == NodeLiteralString && b.kind == NodeLiteralString {
		return strings.Compare(a.str, b.str), true
	}
	if a.kind == NodeLiteralBool && b.kind == NodeLiteralBool {
		if a.b == b.b {
			return 0, true
		}
		if !a.b && b.b {
			return -1, true
		}
		return 1, true
	}
	af, aok := a.asFloat()
	bf, bok := b.asFloat()
	if aok && bok {
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		default:
			return 0, true
		}
	}
	return 0, false
}

func evalStringPredicate(n *Node, lookup Lookup) Tri {
	l, lok := resolveOperand(n.Children[0], lookup)
	r, rok := resolveOperand(n.Children[1], lookup)
	if !lok || !rok || l.kind != NodeLiteralString || r.kind != NodeLiteralString {
		return Unknown
	}
	switch n.Kind {
	case NodeContains:
		return triFromBool(strings.Contains(l.str, r.str))
	case NodeStartsWith:
		return triFromBool(strings.HasPrefix(l.str, r.str))
	case NodeEndsWith:
		return triFromBool(strings.HasSuffix(l.str, r.str))
	case NodeLike:
		return triFromBool(matchLike(l.str, r.str))
	}
	return Unknown
}

// matchLike implements SQL LIKE with % (any run) and _ (any one), and \
// as an escape for literal % or _ (spec §4.3).
func matchLike(s, pattern string) bool {
	return likeMatch([]rune(s), []rune(pattern))
}

func likeMatch(s, p []rune) bool {
	if len(p) == 0 {
		return len(s) == 0
	}
	if p[0] == '\\' && len(p) > 1 {
		if len(s) == 0 || s[0] != p[1] {
			return false
		}
		return likeMatch(s[1:], p[2:])
	}
	if p[0] == '%' {
		if likeMatch(s, p[1:]) {
			return true
		}
		for i := 0; i < len(s); i++ {
			if likeMatch(s[i+1:], p[1:]) {
				return true
			}
		}
		return false
	}
	if p[0] == '_' {
		if len(s) == 0 {
			return false
		}
		return likeMatch(s[1:], p[1:])
	}
	if len(s) == 0 || s[0] != p[0] {
		return false
	}
	return likeMatch(s[1:], p[1:])
}

func evalMembership(n *Node, lookup Lookup) Tri {
	l, lok := resolveOperand(n.Children[0], lookup)
	arrNode := n.Children[1]
	if !lok {
		return Unknown
	}
	found := false
	for _, e := range arrNode.Array {
		es := scalarFromElem(e)
		if cmp, ok := compareScalars(l, es); ok && cmp == 0 {
			found = true
			break
		}
	}
	if n.Kind == NodeNotIn {
		return triFromBool(!found)
	}
	return triFromBool(found)
}

func scalarFromElem(e ArrayElem) scalar {
	switch e.Kind {
	case NodeLiteralString:
		return scalar{kind: NodeLiteralString, str: e.Str}
	case NodeLiteralInt:
		return scalar{kind: NodeLiteralInt, i: e.Int}
	case NodeLiteralFloat:
		return scalar{kind: NodeLiteralFloat, f: e.Flt}
	case NodeLiteralBool:
		return scalar{kind: NodeLiteralBool, b: e.Bool}
	}
	return scalar{}
}

// evalArrayPredicate implements ANY/ALL/NONE over a StringArray metadata
// value (spec §4.3): ANY is element-exists, ALL requires every listed
// value present, NONE requires the sets be disjoint.
func evalArrayPredicate(n *Node, lookup Lookup) Tri {
	field := n.Children[0]
	v, ok := lookup(field.Field)
	if !ok || v.Kind != metadata.KindStringArray {
		return Unknown
	}
	present := make(map[string]bool, len(v.StringArray))
	for _, s := range v.StringArray {
		present[s] = true
	}

	switch n.Kind {
	case NodeAny:
		value, ok := resolveOperand(n.Children[1], lookup)
		if !ok || value.kind != NodeLiteralString {
			return Unknown
		}
		return triFromBool(present[value.str])
	case NodeAll:
		for _, e := range n.Children[1].Array {
			if !present[elemToString(e)] {
				return False
			}
		}
		return True
	case NodeNone:
		for _, e := range n.Children[1].Array {
			if present[elemToString(e)] {
				return False
			}
		}
		return True
	}
	return Unknown
}

func evalBetween(n *Node, lookup Lookup) Tri {
	v, vok := resolveOperand(n.Children[0], lookup)
	low, lok := resolveOperand(n.Children[1], lookup)
	high, hok := resolveOperand(n.Children[2], lookup)
	if !vok || !lok || !hok {
		return Unknown
	}
	loCmp, ok1 := compareScalars(v, low)
	hiCmp, ok2 := compareScalars(v, high)
	if !ok1 || !ok2 {
		return Unknown
	}
	return triFromBool(loCmp >= 0 && hiCmp <= 0)
}
