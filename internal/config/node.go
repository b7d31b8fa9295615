package config

import (
	"encoding/xml"

	"github.com/qveil/contentfilter/internal/cfgutil"
	"github.com/qveil/contentfilter/internal/filterobj"
)

// Node is a generic XML element: its tag name, its attributes, and its
// child elements in document order. Because filter-object children are
// type-specific (a <Network> here, a <Host> there), the loader cannot
// unmarshal into fixed Go structs the way a homogeneous document would;
// instead it decodes into this generic tree and lets each filter
// constructor pull the attributes it understands.
//
// *Node implements [filterobj.ConfigNode] and [cfgutil.AttrSource].
type Node struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Kids    []Node     `xml:",any"`
}

// Name implements [filterobj.ConfigNode].
func (n *Node) Name() (name string) { return n.XMLName.Local }

// Attr implements [filterobj.ConfigNode].
func (n *Node) Attr(name string) (value string, ok bool) {
	for _, a := range n.Attrs {
		if a.Name.Local == name {
			return a.Value, true
		}
	}

	return "", false
}

// ID implements [filterobj.ConfigNode]. It parses the node's "id" attribute
// as a uint32, returning 0 if absent or unparseable; callers that require a
// valid id check for its presence separately via Attr.
func (n *Node) ID() (id uint32) {
	s, ok := n.Attr("id")
	if !ok {
		return 0
	}

	v, err := cfgutil.ParseUint32(s)
	if err != nil {
		return 0
	}

	return v
}

// Children implements [filterobj.ConfigNode].
func (n *Node) Children() (nodes []filterobj.ConfigNode) {
	nodes = make([]filterobj.ConfigNode, len(n.Kids))
	for i := range n.Kids {
		nodes[i] = &n.Kids[i]
	}

	return nodes
}

// ChildrenNamed returns the direct children of n whose tag name is name, in
// document order.
func (n *Node) ChildrenNamed(name string) (kids []*Node) {
	for i := range n.Kids {
		if n.Kids[i].Name() == name {
			kids = append(kids, &n.Kids[i])
		}
	}

	return kids
}
