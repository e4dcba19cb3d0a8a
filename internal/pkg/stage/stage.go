// Package stage implements the embedded Staging Store (C2): a single Pebble
// instance holding three logical tables realized as byte-prefixed key
// ranges, the same table-as-key-prefix idiom used by Erigon's and
// CockroachDB's own storage layers. Pebble gives us WAL-backed durability
// and ordered range scans natively; "relaxed durability" from spec.md §4.2
// maps onto pebble.NoSync batch commits.
package stage

import (
	"encoding/binary"
	"io"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/wikidump/pipeline/internal/pkg/log"
)

const (
	articlesPrefix byte = 0x01
	archivesPrefix byte = 0x02
	metadataPrefix byte = 0x03
)

var bytesReadKey = []byte{metadataPrefix, 'b'}

// Store is the embedded transactional KV described in spec.md §4.2.
type Store struct {
	db     *pebble.DB
	logger *log.FieldedLogger
	markMu sync.Mutex // serializes MarkArchive's read-modify-write of bytes_read
}

// Open opens (or creates) the staging store at dir, matching the on-disk
// layout named in spec.md §6 (data/temp-db/).
func Open(dir string) (*Store, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	logger := log.NewFieldedLogger(&log.Fields{"component": "stage"})
	logger.Debug("staging store opened", "dir", dir)
	return &Store{db: db, logger: logger}, nil
}

// Close flushes and releases the store's WAL and SST files. This is the
// "scoped acquisition with guaranteed release" required by spec.md §9 on
// every exit path, including interrupt.
func (s *Store) Close() error {
	return s.db.Close()
}

// ArticleRow is one pending KV pair for InsertArticles.
type ArticleRow struct {
	Title string
	Value []byte
}

// HasArchive reports whether url has already been fully ingested.
func (s *Store) HasArchive(url string) (bool, error) {
	_, closer, err := s.db.Get(archiveKey(url))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	closer.Close()
	return true, nil
}

// MarkArchive records url as fully ingested and folds bytesReadDelta into
// the bytes_read counter, in one batch commit (spec.md §4.2).
func (s *Store) MarkArchive(url string, bytesReadDelta uint64) error {
	s.markMu.Lock()
	defer s.markMu.Unlock()

	b := s.db.NewIndexedBatch()
	defer b.Close()

	cur, err := readUint64(b, bytesReadKey)
	if err != nil {
		return err
	}
	if err := b.Set(archiveKey(url), nil, nil); err != nil {
		return err
	}
	if err := b.Set(bytesReadKey, encodeUint64(cur+bytesReadDelta), nil); err != nil {
		return err
	}
	return b.Commit(pebble.NoSync)
}

// BytesRead returns the metadata counter described in spec.md §3.
func (s *Store) BytesRead() (uint64, error) {
	return readUint64(s.db, bytesReadKey)
}

// InsertArticles commits a batch of (title -> compressed value) pairs in one
// write transaction with relaxed durability (spec.md §4.2, §4.5).
func (s *Store) InsertArticles(rows []ArticleRow) error {
	if len(rows) == 0 {
		return nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, r := range rows {
		if err := b.Set(articleKey(r.Title), r.Value, nil); err != nil {
			return err
		}
	}
	return b.Commit(pebble.NoSync)
}

// ArticleCount walks the full articles table once, counting rows. It is used
// only to seed the Stage B progress display (spec.md §7) and is not on any
// hot path.
func (s *Store) ArticleCount() (uint64, error) {
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{articlesPrefix},
		UpperBound: []byte{articlesPrefix + 1},
	})
	if err != nil {
		return 0, err
	}
	defer it.Close()

	var n uint64
	for it.First(); it.Valid(); it.Next() {
		n++
	}
	return n, it.Error()
}

// RangeIterator walks one byte-prefix partition of the articles table in key
// order, as required by C6 (spec.md §4.6).
type RangeIterator struct {
	it      *pebble.Iterator
	started bool
}

// ScanRange opens a read iterator over the articles whose title's first byte
// falls in [lo, hi); if last is true the range is unbounded above,
// covering the tail partition (spec.md §4.6).
func (s *Store) ScanRange(lo, hi byte, last bool) (*RangeIterator, error) {
	lower := []byte{articlesPrefix, lo}
	var upper []byte
	if last {
		upper = []byte{articlesPrefix + 1}
	} else {
		upper = []byte{articlesPrefix, hi}
	}
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	return &RangeIterator{it: it}, nil
}

// Next advances the iterator and reports whether a row is available.
func (r *RangeIterator) Next() bool {
	if !r.started {
		r.started = true
		return r.it.First() && r.it.Valid()
	}
	r.it.Next()
	return r.it.Valid()
}

// Title returns the current row's article title (the key with the table
// prefix byte stripped).
func (r *RangeIterator) Title() []byte {
	return r.it.Key()[1:]
}

// Value returns the current row's compressed value. The slice is only valid
// until the next call to Next.
func (r *RangeIterator) Value() []byte {
	return r.it.Value()
}

// Close releases the iterator's snapshot.
func (r *RangeIterator) Close() error {
	return r.it.Close()
}

// Err returns any error encountered during iteration.
func (r *RangeIterator) Err() error {
	return r.it.Error()
}

func archiveKey(url string) []byte {
	key := make([]byte, 0, len(url)+1)
	key = append(key, archivesPrefix)
	return append(key, url...)
}

func articleKey(title string) []byte {
	key := make([]byte, 0, len(title)+1)
	key = append(key, articlesPrefix)
	return append(key, title...)
}

func encodeUint64(v uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	return buf
}

type getter interface {
	Get(key []byte) ([]byte, io.Closer, error)
}

func readUint64(g getter, key []byte) (uint64, error) {
	val, closer, err := g.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	return binary.BigEndian.Uint64(val), nil
}
