// Package compact implements the block-compressed random-access integer
// array used throughout the index for everything that isn't a posting
// list: document offsets, document sizes, term document-frequencies,
// per-scorer max-score tables and score statistics.
//
// Layout (little-endian):
//
//	header  { u32 count; u32 block_size; u32 flags }   flags bit0 = delta
//	leaders [ceil(count/block_size)]{ u32 first_index; u32 byte_offset }
//	blocks  back-to-back variable-byte encoded runs of up to block_size values
package compact

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/wizenheimer/irkit/pkg/vbyte"
)

const (
	headerSize = 12
	leaderSize = 8

	flagDelta = 1 << 0
)

// StructuralError reports a malformed compact-table header or body, per
// the error taxonomy in §7 of the specification.
type StructuralError struct {
	Component string
	Offset    int64
	Msg       string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("compact: structural error in %s at offset %d: %s", e.Component, e.Offset, e.Msg)
}

// Table is a read-only, block-compressed array of uint64 values backed
// by an arbitrary byte slice (in-memory or memory-mapped).
type Table struct {
	count     uint32
	blockSize uint32
	delta     bool
	leaders   []leader
	blocks    []byte
}

type leader struct {
	firstIndex uint32
	byteOffset uint32
}

// Open parses a previously written compact table from buf.
func Open(buf []byte) (*Table, error) {
	if len(buf) < headerSize {
		return nil, &StructuralError{"compact.Table", 0, "buffer shorter than header"}
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	blockSize := binary.LittleEndian.Uint32(buf[4:8])
	flags := binary.LittleEndian.Uint32(buf[8:12])

	if count == 0 && len(buf) != headerSize {
		return nil, &StructuralError{"compact.Table", 0, "count=0 but buffer has trailing bytes"}
	}
	if count > 0 && blockSize == 0 {
		return nil, &StructuralError{"compact.Table", headerSize, "block_size=0 with non-zero count"}
	}

	numBlocks := 0
	if count > 0 {
		numBlocks = int((count + blockSize - 1) / blockSize)
	}
	leadersEnd := headerSize + numBlocks*leaderSize
	if len(buf) < leadersEnd {
		return nil, &StructuralError{"compact.Table", int64(headerSize), "buffer too short for leader array"}
	}

	leaders := make([]leader, numBlocks)
	for i := 0; i < numBlocks; i++ {
		off := headerSize + i*leaderSize
		leaders[i] = leader{
			firstIndex: binary.LittleEndian.Uint32(buf[off : off+4]),
			byteOffset: binary.LittleEndian.Uint32(buf[off+4 : off+8]),
		}
	}

	return &Table{
		count:     count,
		blockSize: blockSize,
		delta:     flags&flagDelta != 0,
		leaders:   leaders,
		blocks:    buf[leadersEnd:],
	}, nil
}

// Len returns the number of elements in the table.
func (t *Table) Len() int { return int(t.count) }

// Lookup returns the i-th element of the original sequence.
func (t *Table) Lookup(i int) (uint64, error) {
	if i < 0 || i >= int(t.count) {
		return 0, fmt.Errorf("compact: index %d out of range [0,%d)", i, t.count)
	}
	// Binary-search the leader array for the greatest first_index <= i.
	bi := sort.Search(len(t.leaders), func(k int) bool {
		return int(t.leaders[k].firstIndex) > i
	}) - 1
	if bi < 0 {
		return 0, &StructuralError{"compact.Table", 0, "no leader covers requested index"}
	}
	ld := t.leaders[bi]
	count := i - int(ld.firstIndex) + 1

	var v0 uint64
	if t.delta && bi > 0 {
		var err error
		v0, err = t.blockLastValue(bi - 1)
		if err != nil {
			return 0, err
		}
	}

	vals, err := t.decodeBlock(ld.byteOffset, count, v0)
	if err != nil {
		return 0, err
	}
	return vals[len(vals)-1], nil
}

// blockLastValue returns the final decoded value of block bi, walking
// forward from block 0 to rebuild the delta chain's running base. Delta
// tables hold small per-term metadata (offsets, sizes), so this O(bi)
// walk is cheap; it also keeps Table free of mutable per-lookup cache
// state, which matters since Tables are shared read-only across threads.
func (t *Table) blockLastValue(bi int) (uint64, error) {
	var v0 uint64
	for k := 0; k <= bi; k++ {
		ld := t.leaders[k]
		var n int
		if k+1 < len(t.leaders) {
			n = int(t.leaders[k+1].firstIndex - ld.firstIndex)
		} else {
			n = int(t.count) - int(ld.firstIndex)
		}
		vals, err := t.decodeBlock(ld.byteOffset, n, v0)
		if err != nil {
			return 0, err
		}
		v0 = vals[len(vals)-1]
	}
	return v0, nil
}

func (t *Table) decodeBlock(byteOffset uint32, count int, v0 uint64) ([]uint64, error) {
	if int(byteOffset) > len(t.blocks) {
		return nil, &StructuralError{"compact.Table", int64(byteOffset), "block offset beyond buffer"}
	}
	buf := t.blocks[byteOffset:]
	if t.delta {
		return vbyte.DecodeDelta(buf, v0, count)
	}
	return vbyte.DecodePlain(buf, count)
}

// All decodes every value in the table, in order. Intended for small
// tables (term statistics, score max-tables) or for tests.
func (t *Table) All() ([]uint64, error) {
	out := make([]uint64, 0, t.count)
	for bi, ld := range t.leaders {
		var n int
		if bi+1 < len(t.leaders) {
			n = int(t.leaders[bi+1].firstIndex - ld.firstIndex)
		} else {
			n = int(t.count) - int(ld.firstIndex)
		}
		var v0 uint64
		if t.delta && bi > 0 && len(out) > 0 {
			v0 = out[len(out)-1]
		}
		vals, err := t.decodeBlock(ld.byteOffset, n, v0)
		if err != nil {
			return nil, err
		}
		out = append(out, vals...)
	}
	return out, nil
}

// Builder accumulates a plain Go slice and serializes it as a compact
// table on Finish.
type Builder struct {
	blockSize uint32
	delta     bool
	values    []uint64
}

// NewBuilder creates a builder for a table with the given block size.
// When delta is true, values must be non-decreasing.
func NewBuilder(blockSize uint32, delta bool) *Builder {
	return &Builder{blockSize: blockSize, delta: delta}
}

// Append adds one value to the table.
func (b *Builder) Append(v uint64) {
	b.values = append(b.values, v)
}

// Len reports how many values have been appended so far.
func (b *Builder) Len() int { return len(b.values) }

// Finish serializes the accumulated values into the on-disk layout.
func (b *Builder) Finish() ([]byte, error) {
	if b.blockSize == 0 {
		if len(b.values) != 0 {
			return nil, fmt.Errorf("compact: block_size=0 but %d values appended", len(b.values))
		}
		out := make([]byte, headerSize)
		binary.LittleEndian.PutUint32(out[0:4], 0)
		binary.LittleEndian.PutUint32(out[4:8], 0)
		return out, nil
	}

	numBlocks := (len(b.values) + int(b.blockSize) - 1) / int(b.blockSize)
	leaders := make([]leader, 0, numBlocks)
	var body []byte

	for start := 0; start < len(b.values); start += int(b.blockSize) {
		end := start + int(b.blockSize)
		if end > len(b.values) {
			end = len(b.values)
		}
		block := b.values[start:end]
		leaders = append(leaders, leader{firstIndex: uint32(start), byteOffset: uint32(len(body))})

		var encoded []byte
		if b.delta {
			var v0 uint64
			if start > 0 {
				v0 = b.values[start-1]
			}
			encoded = vbyte.EncodeDelta(v0, block)
		} else {
			encoded = vbyte.EncodePlain(block)
		}
		body = append(body, encoded...)
	}

	out := make([]byte, headerSize+len(leaders)*leaderSize+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(b.values)))
	binary.LittleEndian.PutUint32(out[4:8], b.blockSize)
	var flags uint32
	if b.delta {
		flags |= flagDelta
	}
	binary.LittleEndian.PutUint32(out[8:12], flags)

	for i, ld := range leaders {
		off := headerSize + i*leaderSize
		binary.LittleEndian.PutUint32(out[off:off+4], ld.firstIndex)
		binary.LittleEndian.PutUint32(out[off+4:off+8], ld.byteOffset)
	}
	copy(out[headerSize+len(leaders)*leaderSize:], body)
	return out, nil
}

// BuildPlain is a convenience one-shot constructor for a non-delta table.
func BuildPlain(values []uint64, blockSize uint32) ([]byte, error) {
	b := NewBuilder(blockSize, false)
	for _, v := range values {
		b.Append(v)
	}
	return b.Finish()
}

// BuildDelta is a convenience one-shot constructor for a delta table.
func BuildDelta(values []uint64, blockSize uint32) ([]byte, error) {
	b := NewBuilder(blockSize, true)
	for _, v := range values {
		b.Append(v)
	}
	return b.Finish()
}
