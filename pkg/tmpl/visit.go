package tmpl

import (
	"bytes"
	"fmt"
	"sort"
)

type Visitor interface {
	Visit(n Node) error
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(n Node) error

func (f VisitorFunc) Visit(n Node) error { return f(n) }

// Walk visits n and its descendants in document order.
func Walk(v Visitor, n Node) error {
	if err := v.Visit(n); err != nil {
		return err
	}
	var children []Node
	switch t := n.(type) {
	case *SequenceNode:
		children = t.Children
	case *IfNode:
		children = t.Body
	case *EachNode:
		children = t.Body
	}
	for _, c := range children {
		if err := Walk(v, c); err != nil {
			return err
		}
	}
	return nil
}

// Refs lists the top-level context names a template consults, split by
// use. Names referenced only through loop items are not included.
type Refs struct {
	Vars   []string
	Flags  []string
	Arrays []string
}

// References collects Refs for the tree rooted at n. Inside each bodies
// variable references are ambiguous between the item and the outer scope,
// so they are reported too; callers treat them as candidates.
func References(n Node) Refs {
	vars, flags, arrays := map[string]bool{}, map[string]bool{}, map[string]bool{}
	_ = Walk(VisitorFunc(func(n Node) error {
		switch t := n.(type) {
		case *VarNode:
			if !isIntrinsic(t.Path) {
				vars[t.Path] = true
			}
		case *IfNode:
			flags[t.Flag] = true
		case *EachNode:
			if !isIntrinsic(t.Array) {
				arrays[t.Array] = true
			}
		}
		return nil
	}), n)
	return Refs{Vars: sortedKeys(vars), Flags: sortedKeys(flags), Arrays: sortedKeys(arrays)}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Pretty returns a line-oriented string representation of the AST.
func Pretty(n Node) string {
	var buf bytes.Buffer
	ppNode(&buf, 0, n)
	return buf.String()
}

func ppNode(buf *bytes.Buffer, indent int, n Node) {
	for i := 0; i < indent; i++ {
		buf.WriteByte(' ')
	}
	switch t := n.(type) {
	case *SequenceNode:
		buf.WriteString("Sequence\n")
		for _, c := range t.Children {
			ppNode(buf, indent+2, c)
		}
	case *TextNode:
		fmt.Fprintf(buf, "Text(%q)\n", t.Text)
	case *VarNode:
		fmt.Fprintf(buf, "Var(%s) @%s\n", t.Path, t.Pos)
	case *IfNode:
		fmt.Fprintf(buf, "If(%s) @%s\n", t.Flag, t.Pos)
		for _, c := range t.Body {
			ppNode(buf, indent+2, c)
		}
	case *EachNode:
		fmt.Fprintf(buf, "Each(%s) @%s\n", t.Array, t.Pos)
		for _, c := range t.Body {
			ppNode(buf, indent+2, c)
		}
	}
}
