package tmpl

// The lexer scans template source into a flat token stream: text runs,
// variable references, block opens and block closes. It knows nothing
// about nesting; that is the parser's job.

import (
	"fmt"
	"strings"
)

// Pos is a location in template source.
type Pos struct {
	Offset int // byte offset
	Line   int // 1-based
	Column int // 1-based, in bytes
}

func (p Pos) String() string { return fmt.Sprintf("%d:%d", p.Line, p.Column) }

type TokenKind int

const (
	TokenText TokenKind = iota
	TokenVar
	TokenOpen
	TokenClose
)

func (k TokenKind) String() string {
	switch k {
	case TokenText:
		return "Text"
	case TokenVar:
		return "VarRef"
	case TokenOpen:
		return "BlockOpen"
	case TokenClose:
		return "BlockClose"
	}
	return "Unknown"
}

// BlockKind distinguishes conditional and loop blocks.
type BlockKind int

const (
	BlockIf BlockKind = iota + 1
	BlockEach
)

func (k BlockKind) String() string {
	switch k {
	case BlockIf:
		return "if"
	case BlockEach:
		return "each"
	}
	return "none"
}

// Token is one lexical element.
//
// For TokenText Value is the literal text, for TokenVar the variable path.
// For TokenOpen Value is the flag name (if) or the array path (each); for
// TokenClose it is the flag name (if) or empty (each).
type Token struct {
	Kind  TokenKind
	Block BlockKind
	Value string
	Pos   Pos
}

// Name is the block name used for open/close matching, e.g. "if_docker"
// or "each".
func (t Token) Name() string {
	switch t.Block {
	case BlockIf:
		return "if_" + t.Value
	case BlockEach:
		return "each"
	}
	return ""
}

// Tag reconstructs the directive as written, without delimiters.
func (t Token) Tag() string {
	switch t.Kind {
	case TokenVar:
		return t.Value
	case TokenOpen:
		if t.Block == BlockEach {
			return "#each " + t.Value
		}
		return "#" + t.Name()
	case TokenClose:
		return "/" + t.Name()
	}
	return t.Value
}

const (
	leftDelim  = "{{"
	rightDelim = "}}"
)

type lexer struct {
	src    string
	i      int
	line   int
	col    int
	tokens []Token
}

// Lex scans source into tokens in source order.
func Lex(source string) ([]Token, error) {
	l := &lexer{src: source, line: 1, col: 1}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

func (l *lexer) pos() Pos {
	return Pos{Offset: l.i, Line: l.line, Column: l.col}
}

// advance moves the cursor to byte offset to, keeping line/column current.
func (l *lexer) advance(to int) {
	for ; l.i < to; l.i++ {
		if l.src[l.i] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
}

func (l *lexer) run() error {
	for l.i < len(l.src) {
		start := l.pos()
		j := strings.Index(l.src[l.i:], leftDelim)
		if j < 0 {
			l.emitText(start, l.src[l.i:])
			l.advance(len(l.src))
			return nil
		}
		if j > 0 {
			l.emitText(start, l.src[l.i:l.i+j])
			l.advance(l.i + j)
			start = l.pos()
		}
		k := strings.Index(l.src[l.i+len(leftDelim):], rightDelim)
		if k < 0 {
			return newError(StageLex, start, ErrUnterminatedTag, "unterminated tag: missing %q", rightDelim)
		}
		body := l.src[l.i+len(leftDelim) : l.i+len(leftDelim)+k]
		tok, err := classify(body, start)
		if err != nil {
			return err
		}
		l.tokens = append(l.tokens, tok)
		l.advance(l.i + len(leftDelim) + k + len(rightDelim))
	}
	return nil
}

func (l *lexer) emitText(pos Pos, s string) {
	l.tokens = append(l.tokens, Token{Kind: TokenText, Value: s, Pos: pos})
}

// classify turns the text between delimiters into a token.
func classify(body string, pos Pos) (Token, error) {
	s := strings.Trim(body, " \t\r\n")
	unknown := func() (Token, error) {
		return Token{}, newError(StageLex, pos, ErrUnknownTag, "unrecognized tag %q", leftDelim+body+rightDelim)
	}
	switch {
	case s == "":
		return unknown()
	case s[0] == '#':
		rest := s[1:]
		if flag, ok := strings.CutPrefix(rest, "if_"); ok {
			if !isIdent(flag) {
				return unknown()
			}
			return Token{Kind: TokenOpen, Block: BlockIf, Value: flag, Pos: pos}, nil
		}
		if arr, ok := cutKeyword(rest, "each"); ok {
			if !isPath(arr) || strings.HasPrefix(arr, "@") {
				return unknown()
			}
			return Token{Kind: TokenOpen, Block: BlockEach, Value: arr, Pos: pos}, nil
		}
		return unknown()
	case s[0] == '/':
		rest := s[1:]
		if flag, ok := strings.CutPrefix(rest, "if_"); ok {
			if !isIdent(flag) {
				return unknown()
			}
			return Token{Kind: TokenClose, Block: BlockIf, Value: flag, Pos: pos}, nil
		}
		if rest == "each" {
			return Token{Kind: TokenClose, Block: BlockEach, Pos: pos}, nil
		}
		// A trailing array name on /each is tolerated and ignored.
		if arr, ok := cutKeyword(rest, "each"); ok && isPath(arr) {
			return Token{Kind: TokenClose, Block: BlockEach, Pos: pos}, nil
		}
		return unknown()
	case isPath(s):
		return Token{Kind: TokenVar, Value: s, Pos: pos}, nil
	}
	return unknown()
}

// cutKeyword splits "kw <arg>" and returns the trimmed argument.
func cutKeyword(s, kw string) (string, bool) {
	rest, ok := strings.CutPrefix(s, kw)
	if !ok || rest == "" || !isSpace(rest[0]) {
		return "", false
	}
	return strings.TrimLeft(rest, " \t\r\n"), true
}

// isPath reports whether s is a variable path: ident(.ident)*, this,
// this.ident..., or @index.
func isPath(s string) bool {
	if s == IndexVar {
		return true
	}
	if s == "" {
		return false
	}
	for _, seg := range strings.Split(s, ".") {
		if !isIdent(seg) {
			return false
		}
	}
	return true
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c == '-' || c >= '0' && c <= '9'):
		default:
			return false
		}
	}
	return true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}
