package postings

import (
	"fmt"

	"github.com/wizenheimer/irkit/pkg/ids"
)

// View zips a document list with one or more payload lists (frequency,
// and zero or more scorer payloads) into a single forward-iterable
// posting sequence. This is the shape query engines actually consume:
// a cursor that dereferences to a document id plus its aligned
// payloads in one step.
type View struct {
	Docs     *DocList
	Payloads []*PayloadList // index 0 is conventionally term frequency
}

// NewView builds a View over a document list and its payload lists. All
// lists must share the same length; this is checked once here rather
// than on every cursor operation.
func NewView(docs *DocList, payloads ...*PayloadList) (*View, error) {
	for i, p := range payloads {
		if p.Len() != docs.Len() {
			return nil, fmt.Errorf("postings: payload list %d has length %d, document list has length %d", i, p.Len(), docs.Len())
		}
	}
	return &View{Docs: docs, Payloads: payloads}, nil
}

// Cursor is a synchronized (document, payload...) cursor over a View.
type Cursor struct {
	doc      *DocCursor
	payloads []*PayloadCursor
}

// Cursor returns a new synchronized cursor positioned at the view's
// first element.
func (v *View) Cursor() *Cursor {
	pcs := make([]*PayloadCursor, len(v.Payloads))
	for i, p := range v.Payloads {
		pcs[i] = p.Cursor()
	}
	c := &Cursor{doc: v.Docs.Cursor(), payloads: pcs}
	c.syncPayloads()
	return c
}

func (c *Cursor) syncPayloads() {
	for _, p := range c.payloads {
		p.Align(c.doc)
	}
}

// Clone returns an independent copy of c.
func (c *Cursor) Clone() *Cursor {
	cp := &Cursor{doc: c.doc.Clone(), payloads: make([]*PayloadCursor, len(c.payloads))}
	for i, p := range c.payloads {
		cp.payloads[i] = p.Clone()
	}
	return cp
}

// End reports whether the cursor is exhausted.
func (c *Cursor) End() bool { return c.doc.End() }

// Document returns the document id at the cursor.
func (c *Cursor) Document() (ids.Document, error) { return c.doc.Value() }

// Payload returns the i-th payload value at the cursor (0 is
// conventionally term frequency).
func (c *Cursor) Payload(i int) (uint64, error) {
	if i < 0 || i >= len(c.payloads) {
		return 0, fmt.Errorf("postings: payload index %d out of range [0,%d)", i, len(c.payloads))
	}
	return c.payloads[i].Value()
}

// Next advances the document cursor and re-aligns every payload
// cursor to it.
func (c *Cursor) Next() error {
	if err := c.doc.Next(); err != nil {
		return err
	}
	c.syncPayloads()
	return nil
}

// AdvanceTo moves the cursor to the first document >= v, re-aligning
// every payload cursor. This is the primitive DAAT, WAND, and
// MaxScore drive their traversal with.
func (c *Cursor) AdvanceTo(v ids.Document) error {
	if err := c.doc.AdvanceTo(v); err != nil {
		return err
	}
	c.syncPayloads()
	return nil
}

// DocCursor exposes the underlying document cursor, for algorithms
// (WAND pivot selection) that need to compare cursors across multiple
// terms without touching payloads.
func (c *Cursor) DocCursor() *DocCursor { return c.doc }
