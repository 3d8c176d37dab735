// Package ids defines the strongly typed primitive identifiers shared by
// every layer of the index: documents, terms, frequencies, scores, byte
// offsets and shard numbers. Keeping them distinct types (instead of bare
// uint32/float64) means a document_t can never be passed where a
// term_id_t is expected without an explicit conversion.
package ids

import "math"

// Document is a dense, 0-based document identifier.
type Document uint32

// NoDocument is returned by lookups that found nothing; it never appears
// as a real document id because document ids are dense in [0, count).
const NoDocument Document = math.MaxUint32

// Sub returns the signed distance between two document ids. Document
// arithmetic is otherwise undefined: two document ids cannot be added.
func (d Document) Sub(other Document) int64 {
	return int64(d) - int64(other)
}

// Term is a dense, 0-based term identifier, ordered lexicographically by
// the underlying term string.
type Term uint32

// NoTerm marks the absence of a term mapping.
const NoTerm Term = math.MaxUint32

// Frequency is a raw term-in-document count, or a document/collection
// frequency, depending on context.
type Frequency uint32

// Score is a floating point relevance score.
type Score float64

// Offset is a byte offset into a posting file.
type Offset uint64

// Shard names a shard within a cluster.
type Shard uint32
