package vdom

import (
	"fmt"
	"strconv"
	"strings"
)

// PatchOp represents the type of patch operation
type PatchOp uint8

const (
	// OpReplaceText replaces text node content
	OpReplaceText PatchOp = 0x01
	// OpSetAttribute sets or replaces an attribute
	OpSetAttribute PatchOp = 0x02
	// OpRemoveNode removes the node at Path
	OpRemoveNode PatchOp = 0x03
	// OpInsertNode appends Node to the children of the element at Path
	OpInsertNode PatchOp = 0x04
	// OpRemoveAttribute removes an attribute
	OpRemoveAttribute PatchOp = 0x06
	// OpReplaceNode swaps the subtree at Path for Node
	OpReplaceNode PatchOp = 0x08
)

// Patch represents a single DOM mutation. Nodes are addressed by their
// child-index path from the root, which both sides can resolve without
// shared node IDs.
type Patch struct {
	Op    PatchOp
	Path  []int
	Key   string // Attribute key for set/remove attribute
	Value string // Text content or attribute value
	Node  *VNode // For insert and replace operations
}

// PathString formats a path as dotted indices ("0.2.1"); the root is "".
func PathString(path []int) string {
	if len(path) == 0 {
		return ""
	}
	var b strings.Builder
	for i, p := range path {
		if i > 0 {
			b.WriteByte('.')
		}
		b.WriteString(strconv.Itoa(p))
	}
	return b.String()
}

// ParsePath is the inverse of PathString.
func ParsePath(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ".")
	path := make([]int, len(parts))
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("vdom: bad path %q", s)
		}
		path[i] = n
	}
	return path, nil
}

// String returns a human-readable representation of the patch
func (p Patch) String() string {
	path := PathString(p.Path)
	switch p.Op {
	case OpReplaceText:
		return fmt.Sprintf("ReplaceText(path=%q, text=%q)", path, p.Value)
	case OpSetAttribute:
		return fmt.Sprintf("SetAttribute(path=%q, key=%q, value=%q)", path, p.Key, p.Value)
	case OpRemoveAttribute:
		return fmt.Sprintf("RemoveAttribute(path=%q, key=%q)", path, p.Key)
	case OpRemoveNode:
		return fmt.Sprintf("RemoveNode(path=%q)", path)
	case OpInsertNode:
		return fmt.Sprintf("InsertNode(parent=%q)", path)
	case OpReplaceNode:
		return fmt.Sprintf("ReplaceNode(path=%q)", path)
	default:
		return fmt.Sprintf("Unknown(op=%d)", p.Op)
	}
}

// diffContext holds state during diffing
type diffContext struct {
	patches []Patch
}

func (ctx *diffContext) addPatch(op PatchOp, path []int, key, value string, node *VNode) {
	ctx.patches = append(ctx.patches, Patch{
		Op:    op,
		Path:  append([]int(nil), path...),
		Key:   key,
		Value: value,
		Node:  node,
	})
}

// Diff computes the patches needed to transform prev into next. Applying the
// patches in order to a tree equal to prev yields a tree equal to next.
func Diff(prev, next *VNode) []Patch {
	ctx := &diffContext{patches: make([]Patch, 0, 16)}
	diffNode(ctx, prev, next, nil)
	return ctx.patches
}

// diffNode recursively diffs two nodes
func diffNode(ctx *diffContext, prev, next *VNode, path []int) {
	if prev == nil && next == nil {
		return
	}
	if prev == nil || next == nil {
		ctx.addPatch(OpReplaceNode, path, "", "", next)
		return
	}

	// Different node types - replace
	if prev.Kind != next.Kind || (prev.Kind == KindElement && prev.Tag != next.Tag) {
		ctx.addPatch(OpReplaceNode, path, "", "", next)
		return
	}

	switch prev.Kind {
	case KindText:
		if prev.Text != next.Text {
			ctx.addPatch(OpReplaceText, path, "", next.Text, nil)
		}

	case KindElement:
		diffProps(ctx, path, prev, next)
		diffChildren(ctx, path, prev.Kids, next.Kids)
	}
}

// diffProps diffs attributes in sorted key order so patch streams are stable
func diffProps(ctx *diffContext, path []int, prev, next *VNode) {
	for _, key := range prev.AttrKeys() {
		if _, exists := next.Props[key]; !exists {
			ctx.addPatch(OpRemoveAttribute, path, key, "", nil)
		}
	}
	for _, key := range next.AttrKeys() {
		nextVal := propToString(next.Props[key])
		if prevVal, exists := prev.Props[key]; exists && propToString(prevVal) == nextVal {
			continue
		}
		ctx.addPatch(OpSetAttribute, path, key, nextVal, nil)
	}
}

// diffChildren performs index-based diffing. Trailing removals are emitted
// from the highest index down so earlier paths stay valid.
func diffChildren(ctx *diffContext, path []int, prevKids, nextKids []VNode) {
	minLen := len(prevKids)
	if len(nextKids) < minLen {
		minLen = len(nextKids)
	}

	child := make([]int, len(path)+1)
	copy(child, path)

	for i := 0; i < minLen; i++ {
		child[len(path)] = i
		diffNode(ctx, &prevKids[i], &nextKids[i], child)
	}

	for i := len(prevKids) - 1; i >= minLen; i-- {
		child[len(path)] = i
		ctx.addPatch(OpRemoveNode, child, "", "", nil)
	}

	for i := minLen; i < len(nextKids); i++ {
		ctx.addPatch(OpInsertNode, path, "", "", &nextKids[i])
	}
}

// Apply mutates root by the given patches and returns the resulting tree.
// A patch addressed at the root with OpReplaceNode returns the new node.
func Apply(root *VNode, patches []Patch) (*VNode, error) {
	for _, p := range patches {
		if len(p.Path) == 0 && p.Op == OpReplaceNode {
			root = p.Node
			continue
		}
		if root == nil {
			return nil, fmt.Errorf("vdom: %s on empty tree", p)
		}
		switch p.Op {
		case OpRemoveNode:
			if len(p.Path) == 0 {
				return nil, nil
			}
			parent := root.At(p.Path[:len(p.Path)-1])
			i := p.Path[len(p.Path)-1]
			if parent == nil || i >= len(parent.Kids) {
				return nil, fmt.Errorf("vdom: %s: no such node", p)
			}
			parent.Kids = append(parent.Kids[:i:i], parent.Kids[i+1:]...)
			continue
		case OpInsertNode:
			parent := root.At(p.Path)
			if parent == nil || p.Node == nil {
				return nil, fmt.Errorf("vdom: %s: no such parent", p)
			}
			parent.Kids = append(parent.Kids, *p.Node)
			continue
		}

		n := root.At(p.Path)
		if n == nil {
			return nil, fmt.Errorf("vdom: %s: no such node", p)
		}
		switch p.Op {
		case OpReplaceText:
			n.Text = p.Value
		case OpSetAttribute:
			props := make(Props, len(n.Props)+1)
			for k, v := range n.Props {
				props[k] = v
			}
			props[p.Key] = p.Value
			n.Props = props
		case OpRemoveAttribute:
			props := make(Props, len(n.Props))
			for k, v := range n.Props {
				if k != p.Key {
					props[k] = v
				}
			}
			n.Props = props
		case OpReplaceNode:
			if p.Node == nil {
				return nil, fmt.Errorf("vdom: %s: nil node", p)
			}
			*n = *p.Node
		default:
			return nil, fmt.Errorf("vdom: unknown op %d", p.Op)
		}
	}
	return root, nil
}

func propToString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprintf("%v", v)
}
