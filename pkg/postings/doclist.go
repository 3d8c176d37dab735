package postings

import (
	"fmt"

	"github.com/wizenheimer/irkit/pkg/ids"
	"github.com/wizenheimer/irkit/pkg/vbyte"
)

// DocList is a lazily-decoded, skip-indexed, delta-encoded document id
// list for a single term.
type DocList struct {
	hdr       header
	blockLast []uint64 // decoded document ids, last of each block
	length    int
}

// OpenDocList parses a term's document-list byte range. length is the
// term's document frequency, supplied by the caller from the term
// dictionary (document lists do not self-describe their element count).
func OpenDocList(buf []byte, length int) (*DocList, error) {
	hdr, blockLast, err := parseHeader(buf, true)
	if err != nil {
		return nil, err
	}
	if hdr.numBlocks == 0 && length != 0 {
		return nil, &StructuralError{"zero blocks but non-zero declared length"}
	}
	if len(blockLast) > 0 && int(blockLast[len(blockLast)-1]) < 0 {
		return nil, &StructuralError{"negative block-last document id"}
	}
	return &DocList{hdr: hdr, blockLast: blockLast, length: length}, nil
}

// Len returns the number of documents in the list.
func (dl *DocList) Len() int { return dl.length }

// BlockSize returns the configured block size.
func (dl *DocList) BlockSize() int { return dl.hdr.blockSize }

// NumBlocks returns the number of blocks.
func (dl *DocList) NumBlocks() int { return dl.hdr.numBlocks }

func (dl *DocList) decodeBlock(bi int) ([]ids.Document, error) {
	n := blockCount(bi, dl.hdr.blockSize, dl.hdr.numBlocks, dl.length)
	var v0 uint64
	if bi > 0 {
		v0 = dl.blockLast[bi-1]
	}
	buf := dl.hdr.blocksRegion[dl.hdr.leaderOffsets[bi]:]
	vals, err := vbyte.DecodeDelta(buf, v0, n)
	if err != nil {
		return nil, fmt.Errorf("postings: decoding document block %d: %w", bi, err)
	}
	out := make([]ids.Document, n)
	for i, v := range vals {
		out[i] = ids.Document(v)
	}
	return out, nil
}

// DocCursor is a forward cursor over a DocList. Its zero-value state
// (block 0, position 0) is the first element; Cursor() starts a fresh
// one.
type DocCursor struct {
	list       *DocList
	blockIndex int
	pos        int
	cached     []ids.Document
	cachedIdx  int // -1 when nothing is cached
	atEnd      bool
}

// Cursor returns a new cursor positioned at the first document.
func (dl *DocList) Cursor() *DocCursor {
	c := &DocCursor{list: dl, cachedIdx: -1}
	if dl.length == 0 {
		c.atEnd = true
	}
	return c
}

// Clone returns an independent copy positioned identically to c. The
// decoded-block cache is shared (read-only) so cloning is cheap — this
// is what lets WAND and MaxScore hold many simultaneous cursors cheaply.
func (c *DocCursor) Clone() *DocCursor {
	cp := *c
	return &cp
}

// BlockIndex and PosInBlock expose the cursor's (block_index,
// pos_in_block) state so payload cursors can Align to it.
func (c *DocCursor) BlockIndex() int { return c.blockIndex }
func (c *DocCursor) PosInBlock() int { return c.pos }

// End reports whether the cursor has advanced past the last element.
func (c *DocCursor) End() bool { return c.atEnd }

func (c *DocCursor) ensureCached() error {
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
func (c *DocCursor) Value() (ids.Document, error) {
	if c.atEnd {
		return ids.NoDocument, fmt.Errorf("postings: dereferencing an exhausted cursor")
	}
	if err := c.ensureCached(); err != nil {
		return ids.NoDocument, err
	}
	return c.cached[c.pos], nil
}

// Next advances the cursor by one element.
func (c *DocCursor) Next() error {
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

// AdvanceTo moves the cursor to the first element >= v, or to End() if
// none exists. It mutates the cursor in place.
func (c *DocCursor) AdvanceTo(v ids.Document) error {
	if c.atEnd {
		return nil
	}
	// Find the first block (at or after the current one) whose last
	// document is >= v.
	bi := c.blockIndex
	for bi < c.list.hdr.numBlocks && ids.Document(c.list.blockLast[bi]) < v {
		bi++
	}
	if bi >= c.list.hdr.numBlocks {
		c.blockIndex = c.list.hdr.numBlocks
		c.pos = 0
		c.atEnd = true
		return nil
	}
	if bi != c.blockIndex {
		c.blockIndex = bi
		c.pos = 0
	}
	if err := c.ensureCached(); err != nil {
		return err
	}
	for c.pos < len(c.cached) && c.cached[c.pos] < v {
		c.pos++
	}
	return nil
}

// NextGE is the non-mutating variant of AdvanceTo: it returns the first
// element >= v without moving c.
func (c *DocCursor) NextGE(v ids.Document) (ids.Document, error) {
	clone := c.Clone()
	if err := clone.AdvanceTo(v); err != nil {
		return ids.NoDocument, err
	}
	if clone.End() {
		return ids.NoDocument, nil
	}
	return clone.Value()
}

// Fetch decodes and returns every element from c's current position up
// to (but not including) end's position, without mutating either
// cursor.
func (c *DocCursor) Fetch(end *DocCursor) ([]ids.Document, error) {
	cur := c.Clone()
	var out []ids.Document
	for {
		if cur.atEnd || (cur.blockIndex == end.blockIndex && cur.pos >= end.pos && !end.atEnd) {
			break
		}
		if end.atEnd && cur.atEnd {
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
