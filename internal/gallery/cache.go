package gallery

import (
	"fmt"
	"sync"
	"sync/atomic"

	"gonum.org/v1/gonum/mat"
)

// Entry identifies the gallery row at a given index.
type Entry struct {
	StudentID string
	ViewType  string
}

// Snapshot is an immutable gallery build: an N x D matrix of unit-normalized
// embeddings plus the per-row identity metadata. Readers share snapshots
// freely; a rebuild publishes a fresh one and never mutates an old one.
type Snapshot struct {
	g    *mat.Dense // nil when the gallery is empty
	meta []Entry
	dim  int
	fp   fingerprint
}

// Len returns the number of gallery rows.
func (s *Snapshot) Len() int { return len(s.meta) }

// Dim returns the embedding dimension, 0 for an empty gallery.
func (s *Snapshot) Dim() int { return s.dim }

// Entries returns the row metadata in gallery order.
func (s *Snapshot) Entries() []Entry { return s.meta }

// Cache serves the current gallery snapshot, rebuilding lazily whenever the
// artifact store's fingerprint no longer matches the cached build.
type Cache struct {
	store *Store

	mu      sync.Mutex // serializes rebuilds
	current atomic.Pointer[Snapshot]
}

func NewCache(store *Store) *Cache {
	return &Cache{store: store}
}

// Snapshot returns a gallery consistent with the artifact store. Concurrent
// callers either share the cached snapshot or wait for a single rebuild.
func (c *Cache) Snapshot() (*Snapshot, error) {
	fp, err := c.store.fingerprint()
	if err != nil {
		return nil, err
	}
	if snap := c.current.Load(); snap != nil && snap.fp == fp {
		return snap, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Re-check under the lock: another caller may have rebuilt already.
	fp, err = c.store.fingerprint()
	if err != nil {
		return nil, err
	}
	if snap := c.current.Load(); snap != nil && snap.fp == fp {
		return snap, nil
	}

	snap, err := c.build(fp)
	if err != nil {
		return nil, err
	}
	c.current.Store(snap)
	return snap, nil
}

// Invalidate drops the cached snapshot so the next call rebuilds.
func (c *Cache) Invalidate() {
	c.current.Store(nil)
}

func (c *Cache) build(fp fingerprint) (*Snapshot, error) {
	artifacts, err := c.store.loadAll()
	if err != nil {
		return nil, err
	}

	snap := &Snapshot{fp: fp}
	if len(artifacts) == 0 {
		return snap, nil
	}

	dim := len(artifacts[0].Vector)
	for _, a := range artifacts {
		if len(a.Vector) != dim {
			return nil, fmt.Errorf("%w: artifact %s/%s has dim %d, gallery has dim %d",
				ErrDimensionMismatch, a.StudentID, a.ViewType, len(a.Vector), dim)
		}
	}

	data := make([]float64, len(artifacts)*dim)
	meta := make([]Entry, len(artifacts))
	for i, a := range artifacts {
		row := data[i*dim : (i+1)*dim]
		for j, v := range a.Vector {
			row[j] = float64(v)
		}
		unitNormalize(row)
		meta[i] = Entry{StudentID: a.StudentID, ViewType: a.ViewType}
	}

	snap.g = mat.NewDense(len(artifacts), dim, data)
	snap.meta = meta
	snap.dim = dim
	return snap, nil
}
