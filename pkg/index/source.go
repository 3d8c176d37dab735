// Package index implements the on-disk inverted-index layout: the
// Source that owns a directory's memory-mapped files (C6), the View
// that exposes it as a read-only query-time facade (C7), and the
// Builder that assembles one from a tokenized document stream (C8).
package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/edsrzf/mmap-go"
)

// Properties is the parsed contents of properties.json.
type Properties struct {
	DocumentCount    int     `json:"document_count"`
	OccurrencesCount uint64  `json:"occurrences_count"`
	SkipBlockSize    int     `json:"skip_block_size"`
	AvgDocumentSize  float64 `json:"avg_document_size"`
	MaxDocumentSize  int     `json:"max_document_size"`
	ShardCount       int     `json:"shard_count,omitempty"`
}

// coreFiles are memory-mapped for every non-cluster directory; terms.txt and titles.txt
// are write-only debugging artifacts the lexicons make redundant for
// query-time lookups, so Source does not map them.
var coreFiles = []string{
	"terms.map", "terms.docfreq", "terms.occurrences",
	"titles.map", "doc.sizes", "doc.id", "doc.idoff", "doc.count", "doc.countoff",
}

// Source owns every memory-mapped byte range backing one index
// directory. Views borrow slices from it and must not outlive it; it
// is safe for concurrent read-only use by multiple Views and threads.
type Source struct {
	dir        string
	files      map[string][]byte
	mappings   []mmap.MMap
	handles    []*os.File
	Properties Properties
	// Scorers lists the scorer name prefixes discovered in the
	// directory (e.g. "bm25", "bm25-8"), each with its .scores,
	// .offsets, and .maxscore files guaranteed present.
	Scorers []string
}

// Open memory-maps an index directory's files. For a cluster root
// (shard_count > 0) only properties.json is read and no file is mapped;
// its shards are opened individually.
func Open(dir string) (*Source, error) {
	s := &Source{dir: dir, files: make(map[string][]byte)}

	propsPath := filepath.Join(dir, "properties.json")
	raw, err := os.ReadFile(propsPath)
	if err != nil {
		return nil, fmt.Errorf("index: reading properties.json: %w", err)
	}
	if err := json.Unmarshal(raw, &s.Properties); err != nil {
		return nil, fmt.Errorf("index: parsing properties.json: %w", err)
	}
	if s.Properties.ShardCount > 0 {
		return s, nil
	}

	for _, name := range coreFiles {
		if err := s.mapFile(name); err != nil {
			_ = s.Close()
			return nil, fmt.Errorf("index: opening %s: %w", name, err)
		}
	}

	if err := s.discoverScorers(); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

func (s *Source) discoverScorers() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("index: listing directory: %w", err)
	}
	seen := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".scores") {
			continue
		}
		scorer := strings.TrimSuffix(name, ".scores")
		seen[scorer] = true
	}
	names := make([]string, 0, len(seen))
	for scorer := range seen {
		names = append(names, scorer)
	}
	sort.Strings(names)

	for _, scorer := range names {
		for _, ext := range []string{".scores", ".offsets", ".maxscore"} {
			if err := s.mapFile(scorer + ext); err != nil {
				return fmt.Errorf("index: opening scorer %q: %w", scorer, err)
			}
		}
		for _, ext := range []string{".max", ".mean", ".var"} {
			path := filepath.Join(s.dir, scorer+ext)
			if _, statErr := os.Stat(path); statErr == nil {
				if err := s.mapFile(scorer + ext); err != nil {
					return fmt.Errorf("index: opening scorer statistics %q: %w", scorer, err)
				}
			}
		}
	}
	s.Scorers = names
	return nil
}

func (s *Source) mapFile(name string) error {
	path := filepath.Join(s.dir, name)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}
	if fi.Size() == 0 {
		f.Close()
		s.files[name] = []byte{}
		return nil
	}
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return err
	}
	s.files[name] = []byte(m)
	s.mappings = append(s.mappings, m)
	s.handles = append(s.handles, f)
	return nil
}

// OpenFromMemory wraps a set of in-memory byte buffers as a Source,
// for indexes a Builder has assembled but not flushed to disk. No file
// mappings are held, so Close is a no-op.
func OpenFromMemory(files map[string][]byte) (*Source, error) {
	s := &Source{files: files}
	raw, ok := files["properties.json"]
	if !ok {
		return nil, fmt.Errorf("index: in-memory index missing properties.json")
	}
	if err := json.Unmarshal(raw, &s.Properties); err != nil {
		return nil, fmt.Errorf("index: parsing properties.json: %w", err)
	}
	seen := map[string]bool{}
	for name := range files {
		if strings.HasSuffix(name, ".scores") {
			seen[strings.TrimSuffix(name, ".scores")] = true
		}
	}
	names := make([]string, 0, len(seen))
	for scorer := range seen {
		names = append(names, scorer)
	}
	sort.Strings(names)
	s.Scorers = names
	return s, nil
}

// File returns the raw bytes for a file name relative to the index
// directory, or ok=false if it was never mapped.
func (s *Source) File(name string) ([]byte, bool) {
	b, ok := s.files[name]
	return b, ok
}

// Close unmaps every memory-mapped file and closes its handle.
func (s *Source) Close() error {
	var firstErr error
	for _, m := range s.mappings {
		if err := m.Unmap(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, f := range s.handles {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
