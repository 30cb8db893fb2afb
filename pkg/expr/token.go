package expr

import "fmt"

// TokenType represents the type of a token in an audit expression
type TokenType int

const (
	// TOKEN_EOF marks the end of the token stream.
	TOKEN_EOF TokenType = iota
	// TOKEN_ERROR represents a lexical error encountered during scanning.
	TOKEN_ERROR

	// Literals
	TOKEN_IDENTIFIER // params, body, sha256
	TOKEN_NUMBER     // 42, 3.14
	TOKEN_STRING     // "x", 'x'
	TOKEN_TEMPLATE   // `a ${b} c`
	TOKEN_TRUE       // true
	TOKEN_FALSE      // false
	TOKEN_NULL       // null
	TOKEN_UNDEFINED  // undefined

	// Operators - Single character
	TOKEN_BANG     // !
	TOKEN_QUESTION // ?
	TOKEN_COLON    // :
	TOKEN_DOT      // .
	TOKEN_COMMA    // ,
	TOKEN_PLUS     // +
	TOKEN_MINUS    // -
	TOKEN_STAR     // *
	TOKEN_SLASH    // /
	TOKEN_PERCENT  // %
	TOKEN_LT       // <
	TOKEN_GT       // >

	// Operators - Multi character
	TOKEN_EQ              // == or ===
	TOKEN_NEQ             // != or !==
	TOKEN_LTE             // <=
	TOKEN_GTE             // >=
	TOKEN_DOUBLE_PIPE     // ||
	TOKEN_DOUBLE_AMP      // &&
	TOKEN_DOUBLE_QUESTION // ??
	TOKEN_SAFE_NAV        // ?.
	TOKEN_SPREAD          // ...

	// Delimiters
	TOKEN_LBRACE   // {
	TOKEN_RBRACE   // }
	TOKEN_LPAREN   // (
	TOKEN_RPAREN   // )
	TOKEN_LBRACKET // [
	TOKEN_RBRACKET // ]
)

var tokenTypeNames = map[TokenType]string{
	TOKEN_EOF:             "EOF",
	TOKEN_ERROR:           "ERROR",
	TOKEN_IDENTIFIER:      "IDENTIFIER",
	TOKEN_NUMBER:          "NUMBER",
	TOKEN_STRING:          "STRING",
	TOKEN_TEMPLATE:        "TEMPLATE",
	TOKEN_TRUE:            "TRUE",
	TOKEN_FALSE:           "FALSE",
	TOKEN_NULL:            "NULL",
	TOKEN_UNDEFINED:       "UNDEFINED",
	TOKEN_BANG:            "BANG",
	TOKEN_QUESTION:        "QUESTION",
	TOKEN_COLON:           "COLON",
	TOKEN_DOT:             "DOT",
	TOKEN_COMMA:           "COMMA",
	TOKEN_PLUS:            "PLUS",
	TOKEN_MINUS:           "MINUS",
	TOKEN_STAR:            "STAR",
	TOKEN_SLASH:           "SLASH",
	TOKEN_PERCENT:         "PERCENT",
	TOKEN_LT:              "LT",
	TOKEN_GT:              "GT",
	TOKEN_EQ:              "EQ",
	TOKEN_NEQ:             "NEQ",
	TOKEN_LTE:             "LTE",
	TOKEN_GTE:             "GTE",
	TOKEN_DOUBLE_PIPE:     "DOUBLE_PIPE",
	TOKEN_DOUBLE_AMP:      "DOUBLE_AMP",
	TOKEN_DOUBLE_QUESTION: "DOUBLE_QUESTION",
	TOKEN_SAFE_NAV:        "SAFE_NAV",
	TOKEN_SPREAD:          "SPREAD",
	TOKEN_LBRACE:          "LBRACE",
	TOKEN_RBRACE:          "RBRACE",
	TOKEN_LPAREN:          "LPAREN",
	TOKEN_RPAREN:          "RPAREN",
	TOKEN_LBRACKET:        "LBRACKET",
	TOKEN_RBRACKET:        "RBRACKET",
}

// String returns the string representation of a TokenType
func (t TokenType) String() string {
	if name, ok := tokenTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", t)
}

// Token represents a single lexical token
type Token struct {
	Type    TokenType   // The type of the token
	Lexeme  string      // The raw text of the token
	Literal interface{} // float64 for numbers, string for strings, []templateChunk for templates
	Pos     int         // Byte offset of the token start (0-indexed)
}

// String returns a string representation of the token
func (t Token) String() string {
	return fmt.Sprintf("%s '%s' at %d", t.Type.String(), t.Lexeme, t.Pos)
}

// keywords maps reserved words to their token types
var keywords = map[string]TokenType{
	"true":      TOKEN_TRUE,
	"false":     TOKEN_FALSE,
	"null":      TOKEN_NULL,
	"undefined": TOKEN_UNDEFINED,
}

// templateChunk is one piece of a template literal: either raw text or the
// source of an embedded ${...} expression.
type templateChunk struct {
	text   string
	source string
	isExpr bool
	offset int
}
