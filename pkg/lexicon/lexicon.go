// Package lexicon implements the monotone bidirectional map between
// lexicographically ordered string keys and dense integer ids used for
// both the term dictionary and the document-title dictionary.
//
// Keys are grouped into blocks of keysPerBlock. Within a block, each key
// is stored as a (shared-prefix-length, suffix) pair against the
// previous key in the block (the first key of a block is stored whole).
// Only the first key of each block is kept in a separate, sorted index
// array used to binary-search "which block might this string live in".
package lexicon

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Builder accumulates keys in ascending lexicographic order and produces
// a serialized Lexicon. Keys must be appended strictly increasing.
//
// Each key carries an explicit id, independent of its lexicographic
// rank. For the term dictionary, id and rank coincide by construction
// (term_id is defined as lex rank), so Append assigns the append order.
// For the title dictionary, document ids are assigned by arrival order
// during build and generally do not match title sort order, so
// AppendWithID lets the caller supply the real document id alongside
// each sorted key.
type Builder struct {
	keysPerBlock int
	keys         []string
	ids          []uint32
}

// NewBuilder creates a lexicon builder with the given block size.
func NewBuilder(keysPerBlock int) *Builder {
	if keysPerBlock <= 0 {
		keysPerBlock = 16
	}
	return &Builder{keysPerBlock: keysPerBlock}
}

// Append adds the next key, assigning it an id equal to its append
// order. It must be strictly greater than the previously appended key.
func (b *Builder) Append(key string) error {
	return b.AppendWithID(key, uint32(len(b.keys)))
}

// AppendWithID adds the next key under an explicit id. Keys must still
// be appended in strictly increasing lexicographic order; ids may be
// any dense permutation.
func (b *Builder) AppendWithID(key string, id uint32) error {
	if len(b.keys) > 0 && key <= b.keys[len(b.keys)-1] {
		return fmt.Errorf("lexicon: key %q is not strictly greater than previous key %q", key, b.keys[len(b.keys)-1])
	}
	b.keys = append(b.keys, key)
	b.ids = append(b.ids, id)
	return nil
}

// Len reports how many keys have been appended.
func (b *Builder) Len() int { return len(b.keys) }

// Finish serializes the lexicon.
//
// Layout (little-endian):
//
//	u32 count
//	u32 keys_per_block
//	u32 num_blocks
//	[num_blocks]u32 block_byte_offset   (into the block region)
//	[count]u32 id_at_rank               (the id associated with each sorted key, by rank)
//	block region: for each block, back-to-back entries of
//	  u16 shared_prefix_len (0 for first key of block)
//	  u16 suffix_len
//	  suffix bytes
func (b *Builder) Finish() []byte {
	numBlocks := 0
	if len(b.keys) > 0 {
		numBlocks = (len(b.keys) + b.keysPerBlock - 1) / b.keysPerBlock
	}

	var body []byte
	offsets := make([]uint32, numBlocks)

	for bi := 0; bi < numBlocks; bi++ {
		offsets[bi] = uint32(len(body))
		start := bi * b.keysPerBlock
		end := start + b.keysPerBlock
		if end > len(b.keys) {
			end = len(b.keys)
		}
		var prev string
		for i := start; i < end; i++ {
			key := b.keys[i]
			shared := 0
			if i > start {
				shared = commonPrefixLen(prev, key)
			}
			suffix := key[shared:]
			var hdr [4]byte
			binary.LittleEndian.PutUint16(hdr[0:2], uint16(shared))
			binary.LittleEndian.PutUint16(hdr[2:4], uint16(len(suffix)))
			body = append(body, hdr[:]...)
			body = append(body, suffix...)
			prev = key
		}
	}

	idTableOff := 12 + numBlocks*4
	out := make([]byte, idTableOff+len(b.keys)*4+len(body))
	binary.LittleEndian.PutUint32(out[0:4], uint32(len(b.keys)))
	binary.LittleEndian.PutUint32(out[4:8], uint32(b.keysPerBlock))
	binary.LittleEndian.PutUint32(out[8:12], uint32(numBlocks))
	for i, off := range offsets {
		binary.LittleEndian.PutUint32(out[12+i*4:16+i*4], off)
	}
	for i, id := range b.ids {
		binary.LittleEndian.PutUint32(out[idTableOff+i*4:idTableOff+i*4+4], id)
	}
	copy(out[idTableOff+len(b.keys)*4:], body)
	return out
}

func commonPrefixLen(a, b string) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	i := 0
	for i < n && a[i] == b[i] {
		i++
	}
	return i
}

// Lexicon is a read-only view over a serialized key/id map.
type Lexicon struct {
	count        int
	keysPerBlock int
	blockOffsets []uint32
	idAtRank     []uint32
	rankOfID     []uint32
	body         []byte

	// firstKeys caches each block's first key, decoded eagerly at Open
	// time, since it is the only per-block state needed for the
	// string->id binary search and blocks number in the hundreds at
	// most for realistic vocabularies.
	firstKeys []string
}

// Open parses a lexicon previously produced by Builder.Finish.
func Open(buf []byte) (*Lexicon, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("lexicon: buffer shorter than header")
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	keysPerBlock := binary.LittleEndian.Uint32(buf[4:8])
	numBlocks := binary.LittleEndian.Uint32(buf[8:12])

	offEnd := 12 + int(numBlocks)*4
	idTableEnd := offEnd + int(count)*4
	if len(buf) < idTableEnd {
		return nil, fmt.Errorf("lexicon: buffer too short for block offset / id tables")
	}
	offsets := make([]uint32, numBlocks)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(buf[12+i*4 : 16+i*4])
	}
	idAtRank := make([]uint32, count)
	rankOfID := make([]uint32, count)
	for i := range idAtRank {
		id := binary.LittleEndian.Uint32(buf[offEnd+i*4 : offEnd+i*4+4])
		idAtRank[i] = id
		if int(id) >= int(count) {
			return nil, fmt.Errorf("lexicon: id %d at rank %d out of range [0,%d)", id, i, count)
		}
		rankOfID[id] = uint32(i)
	}

	lx := &Lexicon{
		count:        int(count),
		keysPerBlock: int(keysPerBlock),
		blockOffsets: offsets,
		idAtRank:     idAtRank,
		rankOfID:     rankOfID,
		body:         buf[idTableEnd:],
		firstKeys:    make([]string, numBlocks),
	}
	for bi := range offsets {
		key, _, err := lx.readEntry(offsets[bi], "")
		if err != nil {
			return nil, fmt.Errorf("lexicon: reading first key of block %d: %w", bi, err)
		}
		lx.firstKeys[bi] = key
	}
	return lx, nil
}

func (lx *Lexicon) readEntry(pos uint32, prev string) (string, uint32, error) {
	if int(pos)+4 > len(lx.body) {
		return "", 0, fmt.Errorf("lexicon: entry header beyond buffer at %d", pos)
	}
	shared := binary.LittleEndian.Uint16(lx.body[pos : pos+2])
	suffixLen := binary.LittleEndian.Uint16(lx.body[pos+2 : pos+4])
	start := pos + 4
	end := uint32(int(start) + int(suffixLen))
	if int(end) > len(lx.body) {
		return "", 0, fmt.Errorf("lexicon: entry suffix beyond buffer at %d", pos)
	}
	suffix := string(lx.body[start:end])
	var key string
	if int(shared) > len(prev) {
		return "", 0, fmt.Errorf("lexicon: shared prefix longer than previous key at %d", pos)
	}
	key = prev[:shared] + suffix
	return key, end, nil
}

// Len returns the number of keys in the lexicon.
func (lx *Lexicon) Len() int { return lx.count }

// keyAtRank decodes the key at sorted rank r (0-based, lex order).
func (lx *Lexicon) keyAtRank(r int) (string, error) {
	bi := r / lx.keysPerBlock
	within := r % lx.keysPerBlock

	key := lx.firstKeys[bi]
	pos := lx.blockOffsets[bi]
	// Re-walk the prefix chain from the block's first entry; the
	// (shared,suffix) header must be consumed even for the first key
	// (shared=0), so advance pos once before the loop.
	_, pos, err := lx.readEntry(pos, "")
	if err != nil {
		return "", err
	}
	for i := 0; i < within; i++ {
		key, pos, err = lx.readEntry(pos, key)
		if err != nil {
			return "", err
		}
	}
	return key, nil
}

// KeyAt returns the key associated with id.
func (lx *Lexicon) KeyAt(id int) (string, error) {
	if id < 0 || id >= lx.count {
		return "", fmt.Errorf("lexicon: id %d out of range [0,%d)", id, lx.count)
	}
	return lx.keyAtRank(int(lx.rankOfID[id]))
}

// IndexAt returns the id of key, or (0, false) if key is absent.
func (lx *Lexicon) IndexAt(key string) (int, bool) {
	// Binary search for the last block whose first key is <= key.
	bi := sort.Search(len(lx.firstKeys), func(k int) bool {
		return lx.firstKeys[k] > key
	}) - 1
	if bi < 0 {
		return 0, false
	}

	cur := lx.firstKeys[bi]
	pos := lx.blockOffsets[bi]
	_, pos, err := lx.readEntry(pos, "")
	if err != nil {
		return 0, false
	}
	if cur == key {
		return int(lx.idAtRank[bi*lx.keysPerBlock]), true
	}

	limit := lx.keysPerBlock
	if (bi+1)*lx.keysPerBlock > lx.count {
		limit = lx.count - bi*lx.keysPerBlock
	}
	for i := 1; i < limit; i++ {
		var next string
		next, pos, err = lx.readEntry(pos, cur)
		if err != nil {
			return 0, false
		}
		cur = next
		if cur == key {
			return int(lx.idAtRank[bi*lx.keysPerBlock+i]), true
		}
		if cur > key {
			return 0, false
		}
	}
	return 0, false
}

// Entry is one (id, key) pair produced by iteration.
type Entry struct {
	ID  int
	Key string
}

// All returns every (id, key) pair, in ascending lexicographic (rank)
// order. Iteration is restartable since it operates on the immutable,
// shared Lexicon.
func (lx *Lexicon) All() ([]Entry, error) {
	out := make([]Entry, 0, lx.count)
	for bi := range lx.blockOffsets {
		limit := lx.keysPerBlock
		if (bi+1)*lx.keysPerBlock > lx.count {
			limit = lx.count - bi*lx.keysPerBlock
		}
		cur := lx.firstKeys[bi]
		pos := lx.blockOffsets[bi]
		var err error
		_, pos, err = lx.readEntry(pos, "")
		if err != nil {
			return nil, err
		}
		out = append(out, Entry{ID: int(lx.idAtRank[bi*lx.keysPerBlock]), Key: cur})
		for i := 1; i < limit; i++ {
			cur, pos, err = lx.readEntry(pos, cur)
			if err != nil {
				return nil, err
			}
			out = append(out, Entry{ID: int(lx.idAtRank[bi*lx.keysPerBlock+i]), Key: cur})
		}
	}
	return out, nil
}

// BuildFromSorted is a convenience one-shot constructor where ids
// equal sort rank (the term-dictionary case).
func BuildFromSorted(keys []string, keysPerBlock int) ([]byte, error) {
	b := NewBuilder(keysPerBlock)
	for _, k := range keys {
		if err := b.Append(k); err != nil {
			return nil, err
		}
	}
	return b.Finish(), nil
}

// SortedEntry pairs a key with its arbitrary id, for BuildFromEntries.
type SortedEntry struct {
	Key string
	ID  uint32
}

// BuildFromEntries is a convenience one-shot constructor for a lexicon
// whose ids are an arbitrary permutation of sort rank (the
// title-dictionary case, where document ids are assigned by arrival
// order during build). entries must already be sorted by Key.
func BuildFromEntries(entries []SortedEntry, keysPerBlock int) ([]byte, error) {
	b := NewBuilder(keysPerBlock)
	for _, e := range entries {
		if err := b.AppendWithID(e.Key, e.ID); err != nil {
			return nil, err
		}
	}
	return b.Finish(), nil
}
