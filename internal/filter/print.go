package filter

import (
	"strconv"
	"strings"
)

// Print renders a compiled AST back to the canonical surface syntax
// (spec §4.3's "turn ... back", exercised by round-trip law R1). AND/OR
// chains are printed left-associated in source operand order, matching
// how the parser itself builds them; a right operand of the same
// precedence is parenthesized.
func Print(n *Node) string {
	var b strings.Builder
	printNode(&b, n, 0)
	return b.String()
}

// precedence mirrors the parser's: OR lowest, AND next, NOT/comparison
// highest. Used to decide when a child needs parentheses.
func precedence(k NodeKind) int {
	switch k {
	case NodeOr:
		return 1
	case NodeAnd:
		return 2
	case NodeNot:
		return 3
	default:
		return 4
	}
}

func printNode(b *strings.Builder, n *Node, parentPrec int) {
	switch n.Kind {
	case NodeField:
		b.WriteString(n.Field)
	case NodeLiteralString:
		b.WriteString(quoteString(n.Str))
	case NodeLiteralInt:
		b.WriteString(strconv.FormatInt(n.Int, 10))
	case NodeLiteralFloat:
		b.WriteString(strconv.FormatFloat(n.Flt, 'g', -1, 64))
	case NodeLiteralBool:
		b.WriteString(strconv.FormatBool(n.Bool))
	case NodeLiteralArray:
		b.WriteByte('[')
		for i, e := range n.Array {
			if i > 0 {
				b.WriteString(", ")
			}
			printElem(b, e)
		}
		b.WriteByte(']')

	case NodeAnd, NodeOr:
		prec := precedence(n.Kind)
		open := prec < parentPrec
		if open {
			b.WriteByte('(')
		}
		printNode(b, n.Children[0], prec)
		if n.Kind == NodeAnd {
			b.WriteString(" AND ")
		} else {
			b.WriteString(" OR ")
		}
		printNode(b, n.Children[1], prec+1)
		if open {
			b.WriteByte(')')
		}

	case NodeNot:
		b.WriteString("NOT ")
		printNode(b, n.Children[0], precedence(NodeNot))

	case NodeEq, NodeNe, NodeLt, NodeLe, NodeGt, NodeGe:
		printNode(b, n.Children[0], 4)
		b.WriteString(" " + comparisonOp(n.Kind) + " ")
		printNode(b, n.Children[1], 4)

	case NodeContains, NodeStartsWith, NodeEndsWith, NodeLike:
		printNode(b, n.Children[0], 4)
		b.WriteString(" " + stringOp(n.Kind) + " ")
		printNode(b, n.Children[1], 4)

	case NodeIn, NodeNotIn:
		printNode(b, n.Children[0], 4)
		if n.Kind == NodeIn {
			b.WriteString(" IN ")
		} else {
			b.WriteString(" NOT IN ")
		}
		printNode(b, n.Children[1], 4)

	case NodeAny, NodeAll, NodeNone:
		b.WriteString(arrayPredicateName(n.Kind))
		b.WriteByte('(')
		b.WriteString(n.Children[0].Field)
		b.WriteString(", ")
		printNode(b, n.Children[1], 0)
		b.WriteByte(')')

	case NodeIsNull:
		printNode(b, n.Children[0], 4)
		b.WriteString(" IS NULL")
	case NodeIsNotNull:
		printNode(b, n.Children[0], 4)
		b.WriteString(" IS NOT NULL")

	case NodeBetween:
		printNode(b, n.Children[0], 4)
		b.WriteString(" BETWEEN ")
		printNode(b, n.Children[1], 4)
		b.WriteString(" AND ")
		printNode(b, n.Children[2], 4)
	}
}

func printElem(b *strings.Builder, e ArrayElem) {
	switch e.Kind {
	case NodeLiteralString:
		b.WriteString(quoteString(e.Str))
	case NodeLiteralInt:
		b.WriteString(strconv.FormatInt(e.Int, 10))
	case NodeLiteralFloat:
		b.WriteString(strconv.FormatFloat(e.Flt, 'g', -1, 64))
	case NodeLiteralBool:
		b.WriteString(strconv.FormatBool(e.Bool))
	}
}

func quoteString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func comparisonOp(k NodeKind) string {
	switch k {
	case NodeEq:
		return "="
	case NodeNe:
		return "!="
	case NodeLt:
		return "<"
	case NodeLe:
		return "<="
	case NodeGt:
		return ">"
	case NodeGe:
		return ">="
	}
	return "?"
}

func stringOp(k NodeKind) string {
	switch k {
	case NodeContains:
		return "CONTAINS"
	case NodeStartsWith:
		return "STARTS_WITH"
	case NodeEndsWith:
		return "ENDS_WITH"
	case NodeLike:
		return "LIKE"
	}
	return "?"
}

func arrayPredicateName(k NodeKind) string {
	switch k {
	case NodeAny:
		return "ANY"
	case NodeAll:
		return "ALL"
	case NodeNone:
		return "NONE"
	}
	return "?"
}
