package expr

import (
	"fmt"
	"strconv"
	"strings"
)

// Lexer tokenizes an audit expression.
//
// Lexer instances are not safe for concurrent use; create one per expression.
type Lexer struct {
	source  string
	start   int
	current int
	tokens  []Token
	errors  []*SyntaxError
}

// NewLexer creates a new Lexer for the given source
func NewLexer(source string) *Lexer {
	return &Lexer{
		source: source,
		tokens: make([]Token, 0),
	}
}

// ScanTokens tokenizes the entire source and returns tokens and errors
func (l *Lexer) ScanTokens() ([]Token, []*SyntaxError) {
	for !l.isAtEnd() {
		l.start = l.current
		l.scanToken()
	}

	l.tokens = append(l.tokens, Token{Type: TOKEN_EOF, Pos: l.current})
	return l.tokens, l.errors
}

//nolint:gocyclo,cyclop // Lexer dispatch function
func (l *Lexer) scanToken() {
	c := l.advance()

	switch c {
	case '(':
		l.addToken(TOKEN_LPAREN)
	case ')':
		l.addToken(TOKEN_RPAREN)
	case '{':
		l.addToken(TOKEN_LBRACE)
	case '}':
		l.addToken(TOKEN_RBRACE)
	case '[':
		l.addToken(TOKEN_LBRACKET)
	case ']':
		l.addToken(TOKEN_RBRACKET)
	case ',':
		l.addToken(TOKEN_COMMA)
	case ':':
		l.addToken(TOKEN_COLON)
	case '+':
		l.addToken(TOKEN_PLUS)
	case '-':
		l.addToken(TOKEN_MINUS)
	case '*':
		l.addToken(TOKEN_STAR)
	case '/':
		l.addToken(TOKEN_SLASH)
	case '%':
		l.addToken(TOKEN_PERCENT)
	case '.':
		l.scanDotToken()
	case '!':
		l.scanBangToken()
	case '=':
		l.scanEqualsToken()
	case '<':
		if l.match('=') {
			l.addToken(TOKEN_LTE)
		} else {
			l.addToken(TOKEN_LT)
		}
	case '>':
		if l.match('=') {
			l.addToken(TOKEN_GTE)
		} else {
			l.addToken(TOKEN_GT)
		}
	case '|':
		if l.match('|') {
			l.addToken(TOKEN_DOUBLE_PIPE)
		} else {
			l.addError("unexpected character '|' (did you mean '||'?)")
		}
	case '&':
		if l.match('&') {
			l.addToken(TOKEN_DOUBLE_AMP)
		} else {
			l.addError("unexpected character '&' (did you mean '&&'?)")
		}
	case '?':
		l.scanQuestionToken()
	case '"', '\'':
		l.string(c)
	case '`':
		l.template()
	case ' ', '\r', '\t', '\n':
		// Ignore whitespace
	default:
		l.scanDefault(c)
	}
}

// scanDotToken handles ., ... and numbers starting with .
func (l *Lexer) scanDotToken() {
	if l.peek() == '.' && l.peekNext() == '.' {
		l.advance()
		l.advance()
		l.addToken(TOKEN_SPREAD)
		return
	}
	if isDigit(l.peek()) {
		l.number()
		return
	}
	l.addToken(TOKEN_DOT)
}

// scanBangToken handles !, != and !==
func (l *Lexer) scanBangToken() {
	if l.match('=') {
		l.match('=')
		l.addToken(TOKEN_NEQ)
		return
	}
	l.addToken(TOKEN_BANG)
}

// scanEqualsToken handles == and ===; assignment is not part of the grammar
func (l *Lexer) scanEqualsToken() {
	if l.match('=') {
		l.match('=')
		l.addToken(TOKEN_EQ)
		return
	}
	l.addError("assignment is not allowed in expressions")
}

// scanQuestionToken handles ?, ?. and ??
func (l *Lexer) scanQuestionToken() {
	switch {
	case l.peek() == '.' && !isDigit(l.peekNext()):
		l.advance()
		l.addToken(TOKEN_SAFE_NAV)
	case l.match('?'):
		l.addToken(TOKEN_DOUBLE_QUESTION)
	default:
		l.addToken(TOKEN_QUESTION)
	}
}

func (l *Lexer) scanDefault(c byte) {
	switch {
	case isDigit(c):
		l.number()
	case isAlpha(c):
		l.identifier()
	default:
		l.addError(fmt.Sprintf("unexpected character: '%c'", c))
	}
}

// string handles single and double quoted string literals
func (l *Lexer) string(quote byte) {
	value := strings.Builder{}

	for !l.isAtEnd() && l.peek() != quote {
		if l.peek() == '\\' {
			l.advance()
			if l.isAtEnd() {
				break
			}
			value.WriteByte(unescape(l.advance()))
			continue
		}
		value.WriteByte(l.advance())
	}

	if l.isAtEnd() {
		l.addError("unterminated string")
		return
	}

	l.advance() // closing quote
	l.addTokenWithLiteral(TOKEN_STRING, value.String())
}

// template handles `...${expr}...` literals. Embedded expression sources are
// kept verbatim and parsed by the parser.
func (l *Lexer) template() {
	var chunks []templateChunk
	text := strings.Builder{}

	for !l.isAtEnd() && l.peek() != '`' {
		switch {
		case l.peek() == '\\':
			l.advance()
			if l.isAtEnd() {
				break
			}
			text.WriteByte(unescape(l.advance()))
		case l.peek() == '$' && l.peekNext() == '{':
			if text.Len() > 0 {
				chunks = append(chunks, templateChunk{text: text.String()})
				text.Reset()
			}
			l.advance()
			l.advance()
			offset := l.current
			source, ok := l.embeddedExpression()
			if !ok {
				l.addError("unterminated ${ in template")
				return
			}
			chunks = append(chunks, templateChunk{source: source, isExpr: true, offset: offset})
		default:
			text.WriteByte(l.advance())
		}
	}

	if l.isAtEnd() {
		l.addError("unterminated template literal")
		return
	}
	l.advance() // closing backtick

	if text.Len() > 0 {
		chunks = append(chunks, templateChunk{text: text.String()})
	}
	l.addTokenWithLiteral(TOKEN_TEMPLATE, chunks)
}

// embeddedExpression consumes up to the } closing a ${ and returns the inner source.
func (l *Lexer) embeddedExpression() (string, bool) {
	begin := l.current
	depth := 0
	for !l.isAtEnd() {
		c := l.peek()
		switch c {
		case '{':
			depth++
		case '}':
			if depth == 0 {
				src := l.source[begin:l.current]
				l.advance()
				return src, true
			}
			depth--
		case '"', '\'', '`':
			l.advance()
			for !l.isAtEnd() && l.peek() != c {
				if l.peek() == '\\' {
					l.advance()
				}
				l.advance()
			}
		}
		l.advance()
	}
	return "", false
}

// number handles integer and float literals
func (l *Lexer) number() {
	for isDigit(l.peek()) || l.peek() == '_' {
		l.advance()
	}
	if l.peek() == '.' && isDigit(l.peekNext()) {
		l.advance()
		for isDigit(l.peek()) || l.peek() == '_' {
			l.advance()
		}
	}
	if l.peek() == 'e' || l.peek() == 'E' {
		l.advance()
		if l.peek() == '+' || l.peek() == '-' {
			l.advance()
		}
		if !isDigit(l.peek()) {
			l.addError("invalid number: expected digits after exponent")
			return
		}
		for isDigit(l.peek()) {
			l.advance()
		}
	}

	lexeme := strings.ReplaceAll(l.source[l.start:l.current], "_", "")
	value, err := strconv.ParseFloat(lexeme, 64)
	if err != nil {
		l.addError(fmt.Sprintf("invalid number literal: %s", lexeme))
		return
	}
	l.addTokenWithLiteral(TOKEN_NUMBER, value)
}

// identifier handles identifiers and keywords
func (l *Lexer) identifier() {
	for isAlphaNumeric(l.peek()) {
		l.advance()
	}

	text := l.source[l.start:l.current]
	if tokenType, ok := keywords[text]; ok {
		l.addToken(tokenType)
		return
	}
	l.addToken(TOKEN_IDENTIFIER)
}

func (l *Lexer) isAtEnd() bool {
	return l.current >= len(l.source)
}

func (l *Lexer) advance() byte {
	if l.isAtEnd() {
		return 0
	}
	c := l.source[l.current]
	l.current++
	return c
}

func (l *Lexer) match(expected byte) bool {
	if l.isAtEnd() || l.source[l.current] != expected {
		return false
	}
	l.current++
	return true
}

func (l *Lexer) peek() byte {
	if l.isAtEnd() {
		return 0
	}
	return l.source[l.current]
}

func (l *Lexer) peekNext() byte {
	if l.current+1 >= len(l.source) {
		return 0
	}
	return l.source[l.current+1]
}

func (l *Lexer) addToken(tokenType TokenType) {
	l.addTokenWithLiteral(tokenType, nil)
}

func (l *Lexer) addTokenWithLiteral(tokenType TokenType, literal interface{}) {
	l.tokens = append(l.tokens, Token{
		Type:    tokenType,
		Lexeme:  l.source[l.start:l.current],
		Literal: literal,
		Pos:     l.start,
	})
}

func (l *Lexer) addError(message string) {
	end := l.current
	if end > l.start+20 {
		end = l.start + 20
	}
	l.errors = append(l.errors, &SyntaxError{
		Message: message,
		Pos:     l.start,
		Near:    l.source[l.start:end],
	})
}

func unescape(c byte) byte {
	switch c {
	case 'n':
		return '\n'
	case 't':
		return '\t'
	case 'r':
		return '\r'
	default:
		return c
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '$'
}

func isAlphaNumeric(c byte) bool {
	return isAlpha(c) || isDigit(c)
}
