package ldtable

// indexPseudoAttr names the always-queryable pseudo-attribute bound to a
// slot's own id, independent of the indexed attribute set.
const indexPseudoAttr = "_index"

// Handle is a query-handle factory: a snapshot of a table's attribute set
// and schema epoch at the moment it was produced. Proxies obtained through
// it build nodes that re-check the epoch when evaluated; if the table has
// since been reindexed or grown a new attribute, evaluation fails with
// ErrStaleHandle. Ask the table for a fresh Handle at query time to avoid
// staleness entirely.
type Handle struct {
	table *Table
	epoch uint64
}

// Attr returns a proxy bound to name. The proxy itself satisfies Node: used
// without a comparison it evaluates to the empty set (Incomplete).
func (h *Handle) Attr(name string) *AttrProxy {
	return &AttrProxy{handle: h, name: name}
}

// AttrProxy is an attribute-bound query-handle proxy. Its comparison methods
// build Eq/Cmp nodes guarded by the owning handle's epoch.
type AttrProxy struct {
	handle *Handle
	name   string
}

func (p *AttrProxy) wrap(inner Node) Node {
	return handleNode{handle: p.handle, inner: inner}
}

// Eq builds an equality node for this attribute.
func (p *AttrProxy) Eq(value any) Node { return p.wrap(eqNode{attr: p.name, value: value}) }

// Ne builds a "not equal" node for this attribute.
func (p *AttrProxy) Ne(value any) Node { return p.wrap(cmpNode{attr: p.name, op: OpNE, value: value}) }

// Lt builds a "<" node for this attribute.
func (p *AttrProxy) Lt(value any) Node { return p.wrap(cmpNode{attr: p.name, op: OpLT, value: value}) }

// Le builds a "<=" node for this attribute.
func (p *AttrProxy) Le(value any) Node { return p.wrap(cmpNode{attr: p.name, op: OpLE, value: value}) }

// Gt builds a ">" node for this attribute.
func (p *AttrProxy) Gt(value any) Node { return p.wrap(cmpNode{attr: p.name, op: OpGT, value: value}) }

// Ge builds a ">=" node for this attribute.
func (p *AttrProxy) Ge(value any) Node { return p.wrap(cmpNode{attr: p.name, op: OpGE, value: value}) }

// eval lets a bare AttrProxy (no comparison applied) stand in directly as a
// Node: it resolves to the empty set, matching Incomplete semantics.
func (p *AttrProxy) eval(t *Table) (slotSet, error) {
	return p.wrap(incompleteNode{}).eval(t)
}

// handleNode guards an inner node's evaluation with the epoch captured by
// the handle it was produced from.
type handleNode struct {
	handle *Handle
	inner  Node
}

func (n handleNode) eval(t *Table) (slotSet, error) {
	if n.handle.epoch != t.epoch {
		return nil, ErrStaleHandle
	}
	return n.inner.eval(t)
}
