package expr

// Parser transforms a stream of tokens into an expression tree.
//
// Precedence, lowest first: ?: then ?? then || then && then equality then
// comparison then + - then * / % then unary then member/index/call.
type Parser struct {
	tokens  []Token
	current int
	base    int
	errors  []*SyntaxError
}

// NewParser creates a new parser for the given token stream
func NewParser(tokens []Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse parses exactly one expression and returns it with any errors
func (p *Parser) Parse() (Node, []*SyntaxError) {
	node := p.parseExpression()
	if node != nil && !p.isAtEnd() {
		p.error(p.peek(), "unexpected token after expression")
	}
	return node, p.errors
}

func (p *Parser) parseExpression() Node {
	return p.parseConditional()
}

// parseConditional handles test ? then : else
func (p *Parser) parseConditional() Node {
	test := p.parseNullCoalesce()
	if test == nil {
		return nil
	}

	if !p.match(TOKEN_QUESTION) {
		return test
	}
	operator := p.previous()

	then := p.parseConditional()
	if then == nil {
		return nil
	}
	if !p.match(TOKEN_COLON) {
		p.error(p.peek(), "expected ':' in conditional expression")
		return nil
	}
	otherwise := p.parseConditional()
	if otherwise == nil {
		return nil
	}

	return &ConditionalExpr{Test: test, Then: then, Else: otherwise, Pos: p.pos(operator)}
}

// parseNullCoalesce handles ??
func (p *Parser) parseNullCoalesce() Node {
	return p.parseLogical(p.parseLogicalOr, TOKEN_DOUBLE_QUESTION)
}

// parseLogicalOr handles ||
func (p *Parser) parseLogicalOr() Node {
	return p.parseLogical(p.parseLogicalAnd, TOKEN_DOUBLE_PIPE)
}

// parseLogicalAnd handles &&
func (p *Parser) parseLogicalAnd() Node {
	return p.parseLogical(p.parseEquality, TOKEN_DOUBLE_AMP)
}

func (p *Parser) parseLogical(next func() Node, op TokenType) Node {
	expr := next()
	if expr == nil {
		return nil
	}

	for p.match(op) {
		operator := p.previous()
		right := next()
		if right == nil {
			return nil
		}
		expr = &LogicalExpr{
			Left:     expr,
			Operator: logicalOperator(op),
			Right:    right,
			Pos:      p.pos(operator),
		}
	}

	return expr
}

func logicalOperator(op TokenType) string {
	switch op {
	case TOKEN_DOUBLE_QUESTION:
		return "??"
	case TOKEN_DOUBLE_PIPE:
		return "||"
	default:
		return "&&"
	}
}

// parseEquality handles == and != (strict forms are accepted as aliases)
func (p *Parser) parseEquality() Node {
	return p.parseBinary(p.parseComparison, map[TokenType]string{
		TOKEN_EQ:  "==",
		TOKEN_NEQ: "!=",
	})
}

// parseComparison handles <, <=, > and >=
func (p *Parser) parseComparison() Node {
	return p.parseBinary(p.parseTerm, map[TokenType]string{
		TOKEN_LT:  "<",
		TOKEN_LTE: "<=",
		TOKEN_GT:  ">",
		TOKEN_GTE: ">=",
	})
}

// parseTerm handles + and -
func (p *Parser) parseTerm() Node {
	return p.parseBinary(p.parseFactor, map[TokenType]string{
		TOKEN_PLUS:  "+",
		TOKEN_MINUS: "-",
	})
}

// parseFactor handles *, / and %
func (p *Parser) parseFactor() Node {
	return p.parseBinary(p.parseUnary, map[TokenType]string{
		TOKEN_STAR:    "*",
		TOKEN_SLASH:   "/",
		TOKEN_PERCENT: "%",
	})
}

func (p *Parser) parseBinary(next func() Node, ops map[TokenType]string) Node {
	expr := next()
	if expr == nil {
		return nil
	}

	for {
		symbol, ok := ops[p.peek().Type]
		if !ok {
			return expr
		}
		operator := p.advance()
		right := next()
		if right == nil {
			return nil
		}
		expr = &BinaryExpr{
			Left:     expr,
			Operator: symbol,
			Right:    right,
			Pos:      p.pos(operator),
		}
	}
}

// parseUnary handles ! and unary -
func (p *Parser) parseUnary() Node {
	if p.match(TOKEN_BANG, TOKEN_MINUS) {
		operator := p.previous()
		operand := p.parseUnary()
		if operand == nil {
			return nil
		}
		symbol := "!"
		if operator.Type == TOKEN_MINUS {
			symbol = "-"
		}
		return &UnaryExpr{Operator: symbol, Operand: operand, Pos: p.pos(operator)}
	}

	return p.parseCall()
}

// parseCall handles member access, indexing and calls
func (p *Parser) parseCall() Node {
	expr := p.parsePrimary()
	if expr == nil {
		return nil
	}

	for {
		switch {
		case p.match(TOKEN_LPAREN):
			expr = p.finishCall(expr)
			if expr == nil {
				return nil
			}
		case p.match(TOKEN_DOT):
			name := p.consumeProperty("expected property name after '.'")
			if name == nil {
				return nil
			}
			expr = &MemberExpr{Object: expr, Property: name.Lexeme, Pos: p.pos(*name)}
		case p.match(TOKEN_SAFE_NAV):
			if p.match(TOKEN_LBRACKET) {
				expr = p.finishIndex(expr, true)
				if expr == nil {
					return nil
				}
				continue
			}
			name := p.consumeProperty("expected property name after '?.'")
			if name == nil {
				return nil
			}
			expr = &MemberExpr{Object: expr, Property: name.Lexeme, Optional: true, Pos: p.pos(*name)}
		case p.match(TOKEN_LBRACKET):
			expr = p.finishIndex(expr, false)
			if expr == nil {
				return nil
			}
		default:
			return expr
		}
	}
}

func (p *Parser) finishIndex(object Node, optional bool) Node {
	open := p.previous()
	index := p.parseExpression()
	if index == nil {
		return nil
	}
	if !p.match(TOKEN_RBRACKET) {
		p.error(p.peek(), "expected ']' after index")
		return nil
	}
	return &IndexExpr{Object: object, Index: index, Optional: optional, Pos: p.pos(open)}
}

// finishCall completes parsing a call. Only bare identifiers may be called;
// there are no methods.
func (p *Parser) finishCall(callee Node) Node {
	ident, ok := callee.(*IdentifierExpr)
	if !ok {
		p.error(p.previous(), "only allow-listed functions can be called")
		return nil
	}

	args := make([]Node, 0)
	if !p.check(TOKEN_RPAREN) {
		for {
			arg := p.parseExpression()
			if arg == nil {
				return nil
			}
			args = append(args, arg)
			if !p.match(TOKEN_COMMA) {
				break
			}
		}
	}

	if !p.match(TOKEN_RPAREN) {
		p.error(p.peek(), "expected ')' after arguments")
		return nil
	}

	return &CallExpr{Function: ident.Name, Arguments: args, Pos: ident.Pos}
}

// parsePrimary handles literals, identifiers, grouping and composite literals
//
//nolint:gocyclo,cyclop // dispatch on token type
func (p *Parser) parsePrimary() Node {
	tok := p.peek()
	pos := p.pos(tok)

	switch tok.Type {
	case TOKEN_NUMBER:
		p.advance()
		return &LiteralExpr{Value: tok.Literal, Pos: pos}
	case TOKEN_STRING:
		p.advance()
		return &LiteralExpr{Value: tok.Literal, Pos: pos}
	case TOKEN_TRUE:
		p.advance()
		return &LiteralExpr{Value: true, Pos: pos}
	case TOKEN_FALSE:
		p.advance()
		return &LiteralExpr{Value: false, Pos: pos}
	case TOKEN_NULL, TOKEN_UNDEFINED:
		p.advance()
		return &LiteralExpr{Value: nil, Pos: pos}
	case TOKEN_TEMPLATE:
		p.advance()
		return p.parseTemplate(tok)
	case TOKEN_IDENTIFIER:
		p.advance()
		return &IdentifierExpr{Name: tok.Lexeme, Pos: pos}
	case TOKEN_LPAREN:
		p.advance()
		expr := p.parseExpression()
		if expr == nil {
			return nil
		}
		if !p.match(TOKEN_RPAREN) {
			p.error(p.peek(), "expected ')' after expression")
			return nil
		}
		return expr
	case TOKEN_LBRACE:
		p.advance()
		return p.parseObjectLiteral(pos)
	case TOKEN_LBRACKET:
		p.advance()
		return p.parseArrayLiteral(pos)
	case TOKEN_EOF:
		p.error(tok, "unexpected end of expression")
		return nil
	default:
		p.error(tok, "unexpected token")
		return nil
	}
}

// parseTemplate parses each embedded ${...} source as its own expression
func (p *Parser) parseTemplate(tok Token) Node {
	chunks, _ := tok.Literal.([]templateChunk)
	tmpl := &TemplateExpr{Parts: make([]Node, 0, len(chunks)), Pos: p.pos(tok)}

	for _, chunk := range chunks {
		if !chunk.isExpr {
			tmpl.Parts = append(tmpl.Parts, &LiteralExpr{Value: chunk.text, Pos: p.pos(tok)})
			continue
		}

		tokens, lexErrs := NewLexer(chunk.source).ScanTokens()
		if len(lexErrs) > 0 {
			for _, err := range lexErrs {
				err.Pos += p.base + chunk.offset
				p.errors = append(p.errors, err)
			}
			return nil
		}
		sub := &Parser{tokens: tokens, base: p.base + chunk.offset}
		node, errs := sub.Parse()
		if len(errs) > 0 {
			p.errors = append(p.errors, errs...)
			return nil
		}
		if node == nil {
			p.errors = append(p.errors, &SyntaxError{Message: "empty ${} in template", Pos: p.base + chunk.offset})
			return nil
		}
		tmpl.Parts = append(tmpl.Parts, node)
	}

	return tmpl
}

// parseObjectLiteral parses { key: value, shorthand, ...spread }
func (p *Parser) parseObjectLiteral(pos int) Node {
	obj := &ObjectExpr{Entries: make([]ObjectEntry, 0), Pos: pos}

	for !p.check(TOKEN_RBRACE) && !p.isAtEnd() {
		if p.match(TOKEN_SPREAD) {
			value := p.parseExpression()
			if value == nil {
				return nil
			}
			obj.Entries = append(obj.Entries, ObjectEntry{Value: value, Spread: true})
		} else {
			keyTok := p.advance()
			var key string
			switch keyTok.Type {
			case TOKEN_IDENTIFIER:
				key = keyTok.Lexeme
			case TOKEN_STRING:
				key, _ = keyTok.Literal.(string)
			default:
				p.error(keyTok, "expected property name in object literal")
				return nil
			}

			if p.match(TOKEN_COLON) {
				value := p.parseExpression()
				if value == nil {
					return nil
				}
				obj.Entries = append(obj.Entries, ObjectEntry{Key: key, Value: value})
			} else if keyTok.Type == TOKEN_IDENTIFIER {
				obj.Entries = append(obj.Entries, ObjectEntry{
					Key:   key,
					Value: &IdentifierExpr{Name: key, Pos: p.pos(keyTok)},
				})
			} else {
				p.error(p.peek(), "expected ':' after property name")
				return nil
			}
		}

		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	if !p.match(TOKEN_RBRACE) {
		p.error(p.peek(), "expected '}' to close object literal")
		return nil
	}
	return obj
}

// parseArrayLiteral parses [a, b, c]
func (p *Parser) parseArrayLiteral(pos int) Node {
	arr := &ArrayExpr{Elements: make([]Node, 0), Pos: pos}

	for !p.check(TOKEN_RBRACKET) && !p.isAtEnd() {
		elem := p.parseExpression()
		if elem == nil {
			return nil
		}
		arr.Elements = append(arr.Elements, elem)
		if !p.match(TOKEN_COMMA) {
			break
		}
	}

	if !p.match(TOKEN_RBRACKET) {
		p.error(p.peek(), "expected ']' to close array literal")
		return nil
	}
	return arr
}

// Helper methods

func (p *Parser) match(types ...TokenType) bool {
	for _, t := range types {
		if p.check(t) {
			p.advance()
			return true
		}
	}
	return false
}

func (p *Parser) check(t TokenType) bool {
	return p.peek().Type == t
}

func (p *Parser) advance() Token {
	tok := p.peek()
	if !p.isAtEnd() {
		p.current++
	}
	return tok
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Type == TOKEN_EOF
}

func (p *Parser) peek() Token {
	if p.current >= len(p.tokens) {
		return Token{Type: TOKEN_EOF}
	}
	return p.tokens[p.current]
}

func (p *Parser) previous() Token {
	if p.current == 0 {
		return p.peek()
	}
	return p.tokens[p.current-1]
}

// consumeProperty accepts identifiers and keywords as property names
func (p *Parser) consumeProperty(message string) *Token {
	tok := p.peek()
	switch tok.Type {
	case TOKEN_IDENTIFIER, TOKEN_TRUE, TOKEN_FALSE, TOKEN_NULL, TOKEN_UNDEFINED:
		p.advance()
		return &tok
	}
	p.error(tok, message)
	return nil
}

func (p *Parser) pos(tok Token) int {
	return p.base + tok.Pos
}

func (p *Parser) error(tok Token, message string) {
	p.errors = append(p.errors, &SyntaxError{
		Message: message,
		Pos:     p.pos(tok),
		Near:    tok.Lexeme,
	})
}
