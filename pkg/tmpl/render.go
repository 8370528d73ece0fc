package tmpl

import (
	"bytes"
	"fmt"
)

// Render evaluates node against scope and returns the output text.
func Render(node Node, scope Scope) (string, error) {
	var buf bytes.Buffer
	if err := renderNode(&buf, node, scope); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// RenderRoot renders node with ctx as the only scope frame. A nil ctx
// renders against an empty object.
func RenderRoot(node Node, ctx Value) (string, error) {
	root, err := rootObject(ctx, node.Position())
	if err != nil {
		return "", err
	}
	return Render(node, NewScope(root))
}

func rootObject(ctx Value, pos Pos) (ObjectValue, error) {
	if ctx == nil {
		return ObjectValue{}, nil
	}
	obj, ok := ctx.(ObjectValue)
	if !ok {
		return nil, newError(StageRender, pos, ErrNotObject, "context must be an object, got %s", ctx.Kind())
	}
	return obj, nil
}

func renderNodes(buf *bytes.Buffer, nodes []Node, scope Scope) error {
	for _, n := range nodes {
		if err := renderNode(buf, n, scope); err != nil {
			return err
		}
	}
	return nil
}

func renderNode(buf *bytes.Buffer, n Node, scope Scope) error {
	switch t := n.(type) {
	case *SequenceNode:
		return renderNodes(buf, t.Children, scope)
	case *TextNode:
		buf.WriteString(t.Text)
	case *VarNode:
		v, err := lookup(scope, t.Path, t.Pos)
		if err != nil {
			return err
		}
		if !IsScalar(v) {
			return newError(StageRender, t.Pos, ErrNotScalar, "variable %q is %s, not a scalar", t.Path, v.Kind())
		}
		buf.WriteString(v.String())
	case *IfNode:
		on, err := flag(scope, t)
		if err != nil {
			return err
		}
		if on {
			return renderNodes(buf, t.Body, scope)
		}
	case *EachNode:
		v, err := lookup(scope, t.Array, t.Pos)
		if err != nil {
			return err
		}
		arr, ok := v.(ArrayValue)
		if !ok {
			return newError(StageRender, t.Pos, ErrNotArray, "each %q is %s, not an array", t.Array, v.Kind())
		}
		for i, item := range arr {
			if err := renderNodes(buf, t.Body, scope.Push(item, i)); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("unhandled node type: %T", n)
	}
	return nil
}

// lookup resolves path strictly: a miss is an error.
func lookup(scope Scope, path string, pos Pos) (Value, error) {
	if v, ok := Resolve(scope, path); ok {
		return v, nil
	}
	if isIntrinsic(path) && !scope.InLoop() {
		return nil, newError(StageRender, pos, ErrOutsideLoop, "%q used outside of an each block", path)
	}
	return nil, newError(StageRender, pos, ErrUndefined, "undefined variable %q", path)
}

// flag resolves an if condition. A missing flag reads as false.
func flag(scope Scope, n *IfNode) (bool, error) {
	v, ok := Resolve(scope, n.Flag)
	if !ok {
		if isIntrinsic(n.Flag) && !scope.InLoop() {
			return false, newError(StageRender, n.Pos, ErrOutsideLoop, "%q used outside of an each block", n.Flag)
		}
		return false, nil
	}
	b, ok := Truth(v)
	if !ok {
		return false, newError(StageRender, n.Pos, ErrNotBool, "flag %q is %s %q, not a boolean", n.Flag, v.Kind(), v.String())
	}
	return b, nil
}

func isIntrinsic(path string) bool {
	if path == IndexVar || path == ThisVar {
		return true
	}
	return len(path) > len(ThisVar) && path[:len(ThisVar)+1] == ThisVar+"."
}
