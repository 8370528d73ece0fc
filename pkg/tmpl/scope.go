package tmpl

import "strings"

// Intrinsic names bound by each loop iteration.
const (
	ThisVar  = "this"
	IndexVar = "@index"
)

// scopeFrame is one level of the scope chain. The root frame has vars only;
// loop frames also bind the current item and its index.
type scopeFrame struct {
	vars  ObjectValue
	item  Value
	index int
	loop  bool
}

// Scope is an immutable chain of frames, innermost first. Push returns a
// new Scope and never modifies the receiver.
type Scope struct {
	frames []scopeFrame
}

// NewScope returns a scope whose only frame is root.
func NewScope(root ObjectValue) Scope {
	return Scope{frames: []scopeFrame{{vars: root}}}
}

// Push returns a child scope for one loop iteration. Object items spread
// their fields into the new frame.
func (s Scope) Push(item Value, index int) Scope {
	f := scopeFrame{item: item, index: index, loop: true}
	if obj, ok := item.(ObjectValue); ok {
		f.vars = obj
	}
	frames := make([]scopeFrame, 0, len(s.frames)+1)
	frames = append(frames, f)
	frames = append(frames, s.frames...)
	return Scope{frames: frames}
}

// InLoop reports whether the scope has at least one loop frame.
func (s Scope) InLoop() bool {
	return len(s.frames) > 0 && s.frames[0].loop
}

// Depth is the number of frames in the chain.
func (s Scope) Depth() int { return len(s.frames) }

// Resolve looks up a dotted path. The first segment picks the innermost
// frame binding it; the remaining segments must resolve inside that frame,
// otherwise the search continues with the next outer frame.
func Resolve(scope Scope, path string) (Value, bool) {
	if path == IndexVar {
		if !scope.InLoop() {
			return nil, false
		}
		return IntValue(scope.frames[0].index), true
	}
	segs := strings.Split(path, ".")
	if segs[0] == ThisVar {
		if !scope.InLoop() {
			return nil, false
		}
		return walk(scope.frames[0].item, segs[1:])
	}
	for _, f := range scope.frames {
		head, ok := f.vars[segs[0]]
		if !ok {
			continue
		}
		if v, ok := walk(head, segs[1:]); ok {
			return v, true
		}
	}
	return nil, false
}

func walk(v Value, segs []string) (Value, bool) {
	for _, seg := range segs {
		obj, ok := v.(ObjectValue)
		if !ok {
			return nil, false
		}
		if v, ok = obj[seg]; !ok {
			return nil, false
		}
	}
	return v, v != nil
}
