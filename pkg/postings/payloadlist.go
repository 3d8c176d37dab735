package postings

import (
	"fmt"

	"github.com/wizenheimer/irkit/pkg/vbyte"
)

// PayloadList is a lazily-decoded, block-compressed, plain-coded (no
// delta transform) list of per-document payload values: term
// frequencies in doc.count, or a quantized score in a scorer's
// <S>.scores file.
type PayloadList struct {
	hdr    header
	length int
}

// OpenPayloadList parses a term's payload byte range. length must equal
// the document frequency of the companion DocList — the two lists are
// required to have identical length (spec invariant).
func OpenPayloadList(buf []byte, length int) (*PayloadList, error) {
	hdr, _, err := parseHeader(buf, false)
	if err != nil {
		return nil, err
	}
	if hdr.numBlocks == 0 && length != 0 {
		return nil, &StructuralError{"zero blocks but non-zero declared length"}
	}
	return &PayloadList{hdr: hdr, length: length}, nil
}

// Len returns the number of payload values in the list.
func (pl *PayloadList) Len() int { return pl.length }

func (pl *PayloadList) decodeBlock(bi int) ([]uint64, error) {
	n := blockCount(bi, pl.hdr.blockSize, pl.hdr.numBlocks, pl.length)
	buf := pl.hdr.blocksRegion[pl.hdr.leaderOffsets[bi]:]
	vals, err := vbyte.DecodePlain(buf, n)
	if err != nil {
		return nil, fmt.Errorf("postings: decoding payload block %d: %w", bi, err)
	}
	return vals, nil
}

// PayloadCursor is a forward cursor over a PayloadList. Unlike
// DocCursor it has no skip table of its own: its position is always
// driven by Align, copying the companion document cursor's
// (block_index, pos_in_block) verbatim, never re-decoding to "catch up"
// by value.
type PayloadCursor struct {
	list       *PayloadList
	blockIndex int
	pos        int
	cached     []uint64
	cachedIdx  int
	atEnd      bool
}

// Cursor returns a new cursor positioned at the first payload value.
func (pl *PayloadList) Cursor() *PayloadCursor {
	c := &PayloadCursor{list: pl, cachedIdx: -1}
	if pl.length == 0 {
		c.atEnd = true
	}
	return c
}

// Clone returns an independent copy of c.
func (c *PayloadCursor) Clone() *PayloadCursor {
	cp := *c
	return &cp
}

// Align moves c to the same (block_index, pos_in_block) as doc. It is
// the only way a PayloadCursor changes position other than Next —
// there is no value-based AdvanceTo on a payload list.
func (c *PayloadCursor) Align(doc *DocCursor) {
	c.blockIndex = doc.BlockIndex()
	c.pos = doc.PosInBlock()
	c.atEnd = doc.End()
}

func (c *PayloadCursor) ensureCached() error {
	if c.cachedIdx == c.blockIndex {
		return nil
	}
	blk, err := c.list.decodeBlock(c.blockIndex)
	if err != nil {
		return err
	}
	c.cached = blk
	c.cachedIdx = c.blockIndex
	return nil
}

// Value dereferences the cursor.
func (c *PayloadCursor) Value() (uint64, error) {
	if c.atEnd {
		return 0, fmt.Errorf("postings: dereferencing an exhausted payload cursor")
	}
	if err := c.ensureCached(); err != nil {
		return 0, err
	}
	return c.cached[c.pos], nil
}

// Next advances the cursor by one element, independent of any document
// cursor. The query engines, SAAT included, move payload cursors
// through postings.Cursor, which uses Align instead.
func (c *PayloadCursor) Next() error {
	if c.atEnd {
		return nil
	}
	n := blockCount(c.blockIndex, c.list.hdr.blockSize, c.list.hdr.numBlocks, c.list.length)
	c.pos++
	if c.pos >= n {
		c.blockIndex++
		c.pos = 0
		if c.blockIndex >= c.list.hdr.numBlocks {
			c.atEnd = true
		}
	}
	return nil
}

// End reports whether the cursor has advanced past the last element.
func (c *PayloadCursor) End() bool { return c.atEnd }

// Fetch bulk-decodes every element from c's current position up to (but
// not including) end's position, without mutating either cursor.
func (c *PayloadCursor) Fetch(end *PayloadCursor) ([]uint64, error) {
	cur := c.Clone()
	var out []uint64
	for {
		if cur.atEnd {
			break
		}
		if !end.atEnd && cur.blockIndex == end.blockIndex && cur.pos >= end.pos {
			break
		}
		v, err := cur.Value()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if err := cur.Next(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
