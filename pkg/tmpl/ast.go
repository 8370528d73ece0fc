package tmpl

// Node is any AST node in a parsed template.
type Node interface {
	Position() Pos
	node()
}

// SequenceNode is an ordered list of nodes. Parse returns one as the root.
type SequenceNode struct {
	Children []Node
}

func (*SequenceNode) node() {}

func (n *SequenceNode) Position() Pos {
	if len(n.Children) == 0 {
		return Pos{Line: 1, Column: 1}
	}
	return n.Children[0].Position()
}

// TextNode is literal text between tags.
type TextNode struct {
	Text string
	Pos  Pos
}

func (*TextNode) node()           {}
func (n *TextNode) Position() Pos { return n.Pos }

// VarNode is a variable reference: {{ path }}
type VarNode struct {
	Path string
	Pos  Pos
}

func (*VarNode) node()           {}
func (n *VarNode) Position() Pos { return n.Pos }

// IfNode is a conditional block: {{#if_flag}} ... {{/if_flag}}
type IfNode struct {
	Flag string
	Body []Node
	Pos  Pos
}

func (*IfNode) node()           {}
func (n *IfNode) Position() Pos { return n.Pos }

// EachNode is a loop block: {{#each path}} ... {{/each}}
type EachNode struct {
	Array string
	Body  []Node
	Pos   Pos
}

func (*EachNode) node()           {}
func (n *EachNode) Position() Pos { return n.Pos }
