// Package xmltree builds a namespace-resolved element tree on top of
// xmltokenizer. Activity files are small enough to hold in memory, and a
// tree lets the decoders walk children in document order.
//
// The tokenizer is used for framing only. Its attribute scan marks a tag
// self-closing on any '/' (including one inside a quoted namespace URI) and
// it leaves entities escaped, so tags and character data are split here.
package xmltree

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/muktihari/xmltokenizer"
)

// ErrMalformedDocument is returned when the token stream cannot be assembled
// into a single rooted tree.
var ErrMalformedDocument = errors.New("malformed XML document")

// Node is one element. Space holds the resolved namespace URI, Name the
// local part of the tag.
type Node struct {
	Space    string
	Name     string
	Attrs    map[string]string
	Text     string
	Children []*Node
}

// Is reports whether the node has the given namespace and local name.
func (n *Node) Is(space, name string) bool {
	return n != nil && n.Space == space && n.Name == name
}

// Child returns the first child matching space and name, or nil.
func (n *Node) Child(space, name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Is(space, name) {
			return c
		}
	}
	return nil
}

// Attr returns the value of the attribute with the given local name.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	v, ok := n.Attrs[name]
	return v, ok
}

// frame is an open element on the parse stack.
type frame struct {
	node  *Node
	qname string
	ns    map[string]string
}

// Parse reads a whole document and returns its root element.
func Parse(r io.Reader) (*Node, error) {
	doc, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading document: %w", err)
	}
	doc, err = stripComments(doc)
	if err != nil {
		return nil, err
	}

	tok := xmltokenizer.New(bytes.NewReader(doc))

	var root *Node
	var stack []frame

	for {
		raw, err := tok.RawToken()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
		}
		if len(raw) == 0 {
			if err != nil {
				break
			}
			continue
		}

		t, ok, serr := scanTag(raw)
		if serr != nil {
			return nil, serr
		}
		if !ok {
			// doctype and other directives
			if err != nil {
				break
			}
			continue
		}

		if t.end {
			if len(stack) == 0 {
				return nil, fmt.Errorf("%w: unexpected end element </%s>", ErrMalformedDocument, t.name)
			}
			top := stack[len(stack)-1]
			if top.qname != t.name {
				return nil, fmt.Errorf("%w: end element </%s> does not match <%s>", ErrMalformedDocument, t.name, top.qname)
			}
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				appendText(stack[len(stack)-1].node, t.text)
			}
		} else {
			var parentNS map[string]string
			if len(stack) > 0 {
				parentNS = stack[len(stack)-1].ns
			}
			node, ns, nerr := newNode(&t, parentNS)
			if nerr != nil {
				return nil, nerr
			}

			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformedDocument)
				}
				root = node
			} else {
				parent := stack[len(stack)-1].node
				parent.Children = append(parent.Children, node)
			}

			if !t.selfClosing {
				stack = append(stack, frame{node: node, qname: t.name, ns: ns})
			}
		}

		if err != nil {
			break
		}
	}

	if len(stack) > 0 {
		return nil, fmt.Errorf("%w: element <%s> not closed", ErrMalformedDocument, stack[len(stack)-1].qname)
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedDocument)
	}
	return root, nil
}

// newNode converts a scanned start tag into a Node, resolving its namespace
// against the declarations in scope. The scope map is copied on first
// declaration so siblings never see each other's bindings.
func newNode(t *tag, parentNS map[string]string) (*Node, map[string]string, error) {
	ns := parentNS
	copied := false
	bind := func(prefix, uri string) {
		if !copied {
			cp := make(map[string]string, len(parentNS)+1)
			for k, v := range parentNS {
				cp[k] = v
			}
			ns = cp
			copied = true
		}
		ns[prefix] = uri
	}

	attrs := make(map[string]string, len(t.attrs))

	for _, a := range t.attrs {
		prefix, local := splitQName(a.name)
		switch {
		case prefix == "" && local == "xmlns":
			bind("", a.value)
		case prefix == "xmlns":
			bind(local, a.value)
		default:
			attrs[local] = a.value
		}
	}

	prefix, local := splitQName(t.name)
	space, ok := ns[prefix]
	if !ok && prefix != "" {
		return nil, nil, fmt.Errorf("%w: undeclared namespace prefix %q on <%s>", ErrMalformedDocument, prefix, t.name)
	}

	n := &Node{
		Space: space,
		Name:  local,
		Attrs: attrs,
		Text:  t.text,
	}
	return n, ns, nil
}

func splitQName(full string) (prefix, local string) {
	if i := strings.IndexByte(full, ':'); i >= 0 {
		return full[:i], full[i+1:]
	}
	return "", full
}

func appendText(n *Node, text string) {
	if text == "" {
		return
	}
	n.Text += text
}
