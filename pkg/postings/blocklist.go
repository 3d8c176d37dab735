// Package postings implements the block-compressed, skip-indexed posting
// list readers (C4) and the posting-list view that zips a document list
// with one or more payload lists into a single forward-iterable sequence
// (C5).
//
// A term's on-disk entry is a self-contained byte range carved out of
// doc.id/doc.count (or a scorer's <S>.scores file) by the surrounding
// offset table. Layout, matching §4.4/§6.2 of the specification:
//
//	var-byte { byte_size, block_size, num_blocks }
//	num_blocks var-byte leader byte-offsets (delta-encoded, into the block region)
//	[document lists only] num_blocks var-byte block-last-document values (delta-encoded)
//	num_blocks encoded blocks, back to back
package postings

import (
	"fmt"

	"github.com/wizenheimer/irkit/pkg/vbyte"
)

// StructuralError reports malformed block-list framing.
type StructuralError struct {
	Msg string
}

func (e *StructuralError) Error() string { return "postings: structural error: " + e.Msg }

// header holds the fields common to both document and payload lists.
type header struct {
	blockSize int
	numBlocks int
	// leaderOffsets[i] is the byte offset of block i within blocksRegion.
	leaderOffsets []uint64
	blocksRegion  []byte
}

func parseHeader(buf []byte, isDelta bool) (header, []uint64, error) {
	r := vbyte.NewReader(buf)
	byteSize, err := r.Next()
	if err != nil {
		return header{}, nil, fmt.Errorf("postings: reading byte_size: %w", err)
	}
	if int(byteSize) != len(buf) {
		return header{}, nil, &StructuralError{fmt.Sprintf("declared byte_size %d disagrees with buffer length %d", byteSize, len(buf))}
	}
	blockSize, err := r.Next()
	if err != nil {
		return header{}, nil, fmt.Errorf("postings: reading block_size: %w", err)
	}
	numBlocks, err := r.Next()
	if err != nil {
		return header{}, nil, fmt.Errorf("postings: reading num_blocks: %w", err)
	}
	if numBlocks > 0 && blockSize == 0 {
		return header{}, nil, &StructuralError{"block_size=0 with non-zero num_blocks"}
	}

	leaderOffsets, consumed, err := vbyte.DecodeDeltaN(buf[r.Pos():], 0, int(numBlocks))
	if err != nil {
		return header{}, nil, fmt.Errorf("postings: reading leader offsets: %w", err)
	}
	pos := r.Pos() + consumed

	var blockLast []uint64
	if isDelta {
		var n int
		blockLast, n, err = vbyte.DecodeDeltaN(buf[pos:], 0, int(numBlocks))
		if err != nil {
			return header{}, nil, fmt.Errorf("postings: reading block-last-document table: %w", err)
		}
		pos += n
	}

	return header{
		blockSize:     int(blockSize),
		numBlocks:     int(numBlocks),
		leaderOffsets: leaderOffsets,
		blocksRegion:  buf[pos:],
	}, blockLast, nil
}

// blockCount returns how many elements live in block bi, given the
// list's declared total length.
func blockCount(bi, blockSize, numBlocks, totalLen int) int {
	if bi < numBlocks-1 {
		return blockSize
	}
	return totalLen - blockSize*(numBlocks-1)
}
