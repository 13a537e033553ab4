/* This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/. */

// Package xmltree parses an XML document into a flat, parent-indexed node
// table. Every node has a stable integer id (its position in document order)
// and an explicit parent index, so relationships such as "the ancestor two
// levels up" are plain lookups rather than pointer walks.
package xmltree

import (
	"bytes"
	"encoding/xml"
	"io"
	"sort"
	"strings"
)

type NodeKind int

const (
	DocumentNode NodeKind = iota
	ElementNode
	TextNode
	CommentNode
	ProcInstNode
)

// None is the index of a missing node, e.g. the parent of the root.
const None = -1

type Attr struct {
	Name  string
	Value string
}

type Node struct {
	ID       int
	Parent   int
	Kind     NodeKind
	Name     string // local name, elements only
	Attrs    []Attr
	Text     string // character data, text nodes only
	Children []int
}

type Document struct {
	nodes  []Node
	byName map[string][]int
}

// Parse reads a whole document. The decoder runs in non-strict mode: unknown
// entities and bare ampersands are kept verbatim, which the double-encoded
// sync responses need after unescaping.
func Parse(r io.Reader) (*Document, error) {
	doc := &Document{
		nodes:  []Node{{ID: 0, Parent: None, Kind: DocumentNode}},
		byName: make(map[string][]int),
	}

	dec := xml.NewDecoder(r)
	dec.Strict = false

	current := 0
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			id := doc.add(current, Node{Kind: ElementNode, Name: t.Name.Local, Attrs: convertAttrs(t.Attr)})
			doc.byName[t.Name.Local] = append(doc.byName[t.Name.Local], id)
			current = id
			depth++
		case xml.EndElement:
			if current == 0 {
				continue
			}
			current = doc.nodes[current].Parent
			depth--
		case xml.CharData:
			doc.add(current, Node{Kind: TextNode, Text: string(t)})
		case xml.Comment:
			doc.add(current, Node{Kind: CommentNode, Text: string(t)})
		case xml.ProcInst:
			doc.add(current, Node{Kind: ProcInstNode, Name: t.Target, Text: string(t.Inst)})
		}
	}

	if depth != 0 {
		return nil, &xml.SyntaxError{Msg: "unexpected EOF: unclosed element", Line: 0}
	}
	return doc, nil
}

func ParseString(s string) (*Document, error) {
	return Parse(strings.NewReader(s))
}

func ParseBytes(b []byte) (*Document, error) {
	return Parse(bytes.NewReader(b))
}

func convertAttrs(in []xml.Attr) []Attr {
	out := make([]Attr, 0, len(in))
	for _, a := range in {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		out = append(out, Attr{Name: a.Name.Local, Value: a.Value})
	}
	return out
}

func (d *Document) add(parent int, n Node) int {
	n.ID = len(d.nodes)
	n.Parent = parent
	d.nodes = append(d.nodes, n)
	d.nodes[parent].Children = append(d.nodes[parent].Children, n.ID)
	return n.ID
}

// Node returns a copy of the node with the given id. It panics on an invalid
// id, the same as a slice index would.
func (d *Document) Node(id int) Node {
	return d.nodes[id]
}

func (d *Document) valid(id int) bool {
	return id >= 0 && id < len(d.nodes)
}

// ElementsByName returns all elements with the given local name in document
// order.
func (d *Document) ElementsByName(name string) []int {
	ids := d.byName[name]
	out := make([]int, len(ids))
	copy(out, ids)
	return out
}

func (d *Document) Parent(id int) int {
	if !d.valid(id) {
		return None
	}
	return d.nodes[id].Parent
}

// Ancestor walks depth parents up. The document node counts as an ancestor,
// matching DOM parentNode semantics.
func (d *Document) Ancestor(id int, depth int) int {
	for i := 0; i < depth; i++ {
		id = d.Parent(id)
		if id == None {
			return None
		}
	}
	return id
}

// FirstDescendant returns the first element named name below id, in document
// order, excluding id itself.
func (d *Document) FirstDescendant(id int, name string) int {
	if !d.valid(id) {
		return None
	}
	// A subtree occupies a contiguous id range right after its root, so only
	// the first candidate past id can be a descendant.
	ids := d.byName[name]
	idx := sort.SearchInts(ids, id+1)
	if idx < len(ids) && d.isDescendant(ids[idx], id) {
		return ids[idx]
	}
	return None
}

func (d *Document) isDescendant(id int, ancestor int) bool {
	for p := d.nodes[id].Parent; p != None; p = d.nodes[p].Parent {
		if p == ancestor {
			return true
		}
		if p < ancestor {
			return false
		}
	}
	return false
}

// FirstChild returns the first child node of any kind.
func (d *Document) FirstChild(id int) int {
	if !d.valid(id) || len(d.nodes[id].Children) == 0 {
		return None
	}
	return d.nodes[id].Children[0]
}

// FirstChildElement returns the first child that is an element, skipping text,
// comments and processing instructions.
func (d *Document) FirstChildElement(id int) int {
	if !d.valid(id) {
		return None
	}
	for _, c := range d.nodes[id].Children {
		if d.nodes[c].Kind == ElementNode {
			return c
		}
	}
	return None
}

// Attr returns the named attribute of an element. Empty values are reported
// as absent.
func (d *Document) Attr(id int, name string) (string, bool) {
	if !d.valid(id) || d.nodes[id].Kind != ElementNode {
		return "", false
	}
	for _, a := range d.nodes[id].Attrs {
		if a.Name == name {
			return a.Value, a.Value != ""
		}
	}
	return "", false
}

// Value is the value of the element's first child when that child is
// character data. The text is returned untrimmed.
func (d *Document) Value(id int) (string, bool) {
	child := d.FirstChild(id)
	if child == None || d.nodes[child].Kind != TextNode {
		return "", false
	}
	v := d.nodes[child].Text
	return v, v != ""
}
