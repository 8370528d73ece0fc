package tmpl

// frame is one open block on the parser stack. The bottom frame is the
// implicit root and has no open token.
type frame struct {
	open     Token
	children []Node
}

func (f *frame) root() bool { return f.open.Kind != TokenOpen }

// Parse builds the AST for a token stream. It uses an explicit stack
// rather than recursion so nesting depth is bounded only by memory.
func Parse(tokens []Token) (*SequenceNode, error) {
	stack := []*frame{{}}
	for _, tok := range tokens {
		top := stack[len(stack)-1]
		switch tok.Kind {
		case TokenText:
			if tok.Value != "" {
				top.children = append(top.children, &TextNode{Text: tok.Value, Pos: tok.Pos})
			}
		case TokenVar:
			top.children = append(top.children, &VarNode{Path: tok.Value, Pos: tok.Pos})
		case TokenOpen:
			stack = append(stack, &frame{open: tok})
		case TokenClose:
			if top.root() || top.open.Name() != tok.Name() {
				return nil, closeError(stack, tok)
			}
			stack = stack[:len(stack)-1]
			parent := stack[len(stack)-1]
			parent.children = append(parent.children, top.build())
		}
	}
	if len(stack) > 1 {
		open := stack[len(stack)-1].open
		return nil, newError(StageParse, open.Pos, ErrUnclosedBlock,
			"unclosed block %q opened at line %d, column %d", open.Name(), open.Pos.Line, open.Pos.Column)
	}
	return &SequenceNode{Children: stack[0].children}, nil
}

func (f *frame) build() Node {
	switch f.open.Block {
	case BlockIf:
		return &IfNode{Flag: f.open.Value, Body: f.children, Pos: f.open.Pos}
	default:
		return &EachNode{Array: f.open.Value, Body: f.children, Pos: f.open.Pos}
	}
}

// closeError reports a close tag that does not match the innermost open
// block. It is a mismatch when some outer block would accept the close,
// otherwise the close is dangling.
func closeError(stack []*frame, tok Token) error {
	top := stack[len(stack)-1]
	for i := len(stack) - 1; i > 0; i-- {
		if stack[i].open.Name() == tok.Name() {
			return newError(StageParse, tok.Pos, ErrMismatchedClose,
				"close %q does not match open %q at line %d, column %d",
				tok.Tag(), top.open.Tag(), top.open.Pos.Line, top.open.Pos.Column)
		}
	}
	return newError(StageParse, tok.Pos, ErrDanglingClose,
		"dangling close %q at offset %d has no matching open block", tok.Tag(), tok.Pos.Offset)
}
