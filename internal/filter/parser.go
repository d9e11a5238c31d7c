package filter

import "github.com/edgevec/edgevec/internal/everr"

const maxArrayElems = 1024

// Parser is a recursive-descent, Pratt-flavored parser over the token
// stream spec §4.3 describes: unary NOT binds tightest, then comparison
// and membership operators, then AND, then OR (parentheses override).
type Parser struct {
	lex  *Lexer
	cur  Token
	peek Token
}

// Parse compiles a filter string into an AST. Of the size bounds it
// enforces only the array-literal length (ARRAY_TOO_LARGE past 1024
// elements); the depth and node-count bounds are Validate's job, run
// immediately after by callers (Compile does both).
func Parse(src string) (*Node, error) {
	lex, err := NewLexer(src)
	if err != nil {
		return nil, err
	}
	p := &Parser{lex: lex}
	if err := p.prime(); err != nil {
		return nil, err
	}
	node, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur.Kind != TokEOF {
		return nil, everr.New(everr.CodeSyntaxError, "unexpected trailing input", nil).
			WithPosition(p.cur.Pos.Line, p.cur.Pos.Column, p.cur.Pos.Offset)
	}
	return node, nil
}

func (p *Parser) prime() error {
	t0, err := p.lex.Next()
	if err != nil {
		return err
	}
	t1, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.cur, p.peek = t0, t1
	return nil
}

func (p *Parser) advance() error {
	p.cur = p.peek
	next, err := p.lex.Next()
	if err != nil {
		return err
	}
	p.peek = next
	return nil
}

func (p *Parser) expect(k TokenKind, what string) (Token, error) {
	if p.cur.Kind != k {
		return Token{}, everr.New(everr.CodeSyntaxError, "expected "+what, nil).
			WithPosition(p.cur.Pos.Line, p.cur.Pos.Column, p.cur.Pos.Offset)
	}
	t := p.cur
	return t, p.advance()
}

func (p *Parser) parseOr() (*Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == TokOr {
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeOr, Pos: pos, Children: []*Node{left, right}}
	}
	return left, nil
}

func (p *Parser) parseAnd() (*Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur.Kind == TokAnd {
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &Node{Kind: NodeAnd, Pos: pos, Children: []*Node{left, right}}
	}
	return left, nil
}

func (p *Parser) parseNot() (*Node, error) {
	if p.cur.Kind == TokNot {
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeNot, Pos: pos, Children: []*Node{operand}}, nil
	}
	return p.parseComparison()
}

func (p *Parser) parseComparison() (*Node, error) {
	left, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}

	switch p.cur.Kind {
	case TokEq, TokNe, TokLt, TokLe, TokGt, TokGe:
		kind := map[TokenKind]NodeKind{
			TokEq: NodeEq, TokNe: NodeNe, TokLt: NodeLt,
			TokLe: NodeLe, TokGt: NodeGt, TokGe: NodeGe,
		}[p.cur.Kind]
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: kind, Pos: pos, Children: []*Node{left, right}}, nil

	case TokLike:
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeLike, Pos: pos, Children: []*Node{left, right}}, nil

	case TokContains, TokStartsWith, TokEndsWith:
		kind := map[TokenKind]NodeKind{
			TokContains: NodeContains, TokStartsWith: NodeStartsWith, TokEndsWith: NodeEndsWith,
		}[p.cur.Kind]
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		right, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: kind, Pos: pos, Children: []*Node{left, right}}, nil

	case TokIn:
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		arr, err := p.parseArrayLiteral()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeIn, Pos: pos, Children: []*Node{left, arr}}, nil

	case TokNot:
		if p.peek.Kind == TokIn {
			pos := p.cur.Pos
			if err := p.advance(); err != nil { // consume NOT
				return nil, err
			}
			if err := p.advance(); err != nil { // consume IN
				return nil, err
			}
			arr, err := p.parseArrayLiteral()
			if err != nil {
				return nil, err
			}
			return &Node{Kind: NodeNotIn, Pos: pos, Children: []*Node{left, arr}}, nil
		}
		return left, nil

	case TokBetween:
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		low, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokAnd, "AND"); err != nil {
			return nil, err
		}
		high, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeBetween, Pos: pos, Children: []*Node{left, low, high}}, nil

	case TokIs:
		pos := p.cur.Pos
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.cur.Kind == TokNot {
			if err := p.advance(); err != nil {
				return nil, err
			}
			if _, err := p.expect(TokNull, "NULL"); err != nil {
				return nil, err
			}
			return &Node{Kind: NodeIsNotNull, Pos: pos, Children: []*Node{left}}, nil
		}
		if _, err := p.expect(TokNull, "NULL"); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeIsNull, Pos: pos, Children: []*Node{left}}, nil
	}

	return left, nil
}

// parsePrimary parses an operand: a field reference, a literal, an
// ANY/ALL/NONE predicate, or a parenthesized sub-expression.
func (p *Parser) parsePrimary() (*Node, error) {
	pos := p.cur.Pos
	switch p.cur.Kind {
	case TokLParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		inner, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		return inner, nil

	case TokAny, TokAll, TokNone:
		kind := map[TokenKind]NodeKind{TokAny: NodeAny, TokAll: NodeAll, TokNone: NodeNone}[p.cur.Kind]
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(TokLParen, "("); err != nil {
			return nil, err
		}
		field, err := p.expect(TokIdent, "field name")
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokComma, ","); err != nil {
			return nil, err
		}
		var valueNode *Node
		if kind == NodeAny {
			valueNode, err = p.parseLiteral()
		} else {
			valueNode, err = p.parseArrayLiteral()
		}
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(TokRParen, ")"); err != nil {
			return nil, err
		}
		fieldNode := &Node{Kind: NodeField, Pos: field.Pos, Field: field.Text}
		return &Node{Kind: kind, Pos: pos, Children: []*Node{fieldNode, valueNode}}, nil

	case TokIdent:
		name := p.cur.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeField, Pos: pos, Field: name}, nil

	case TokLBracket:
		return p.parseArrayLiteral()

	default:
		return p.parseLiteral()
	}
}

func (p *Parser) parseLiteral() (*Node, error) {
	pos := p.cur.Pos
	switch p.cur.Kind {
	case TokString:
		text := p.cur.Text
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeLiteralString, Pos: pos, Str: text}, nil
	case TokInt:
		v := p.cur.IVal
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeLiteralInt, Pos: pos, Int: v}, nil
	case TokFloat:
		v := p.cur.FVal
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeLiteralFloat, Pos: pos, Flt: v}, nil
	case TokTrue:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeLiteralBool, Pos: pos, Bool: true}, nil
	case TokFalse:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return &Node{Kind: NodeLiteralBool, Pos: pos, Bool: false}, nil
	case TokLBracket:
		return p.parseArrayLiteral()
	default:
		return nil, everr.New(everr.CodeSyntaxError, "expected a literal value", nil).
			WithPosition(pos.Line, pos.Column, pos.Offset)
	}
}

func (p *Parser) parseArrayLiteral() (*Node, error) {
	pos := p.cur.Pos
	if _, err := p.expect(TokLBracket, "["); err != nil {
		return nil, err
	}
	var elems []ArrayElem
	for p.cur.Kind != TokRBracket {
		if len(elems) >= maxArrayElems {
			return nil, everr.New(everr.CodeArrayTooLarge, "array literal exceeds 1024 elements", nil).
				WithPosition(pos.Line, pos.Column, pos.Offset)
		}
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		elems = append(elems, nodeToElem(lit))
		if p.cur.Kind == TokComma {
			if err := p.advance(); err != nil {
				return nil, err
			}
			continue
		}
		break
	}
	if _, err := p.expect(TokRBracket, "]"); err != nil {
		return nil, err
	}
	return &Node{Kind: NodeLiteralArray, Pos: pos, Array: elems}, nil
}

func nodeToElem(n *Node) ArrayElem {
	return ArrayElem{Kind: n.Kind, Str: n.Str, Int: n.Int, Flt: n.Flt, Bool: n.Bool}
}
