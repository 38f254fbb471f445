// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package paircounter maintains a lazily-invalidated max-heap over adjacent
// token-pair counts alongside the authoritative map that the heap's
// snapshots are checked against.
package paircounter

import (
	"container/heap"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/jamiestephenson/bpekit-go/internal/blockstore"
	"github.com/jamiestephenson/bpekit-go/internal/collective"
)

// Entry is a heap record: the pair, its count at push time (Snapshot), and
// the local block indices known to contain it at introduction time.
type Entry struct {
	Pair     collective.Pair
	Snapshot int64
	Hints    []int
}

// Counter tracks, for a single peer, the authoritative global count of
// every pair it has seen plus a max-heap of possibly-stale snapshots of
// those counts.
type Counter struct {
	authoritative map[collective.Pair]int64
	heap          pairHeap
}

// New returns an empty Counter.
func New() *Counter {
	c := &Counter{authoritative: make(map[collective.Pair]int64)}
	heap.Init(&c.heap)
	return c
}

// Count returns the authoritative current count for p (0 if never seen).
func (c *Counter) Count(p collective.Pair) int64 {
	return c.authoritative[p]
}

// Len reports the number of entries currently in the heap, including stale
// ones awaiting lazy cleanup.
func (c *Counter) Len() int { return c.heap.Len() }

// Commit applies a globally-reduced delta map: a newly-seen
// positive delta inserts both the authoritative count and a heap entry; a
// positive delta for an already-known pair only bumps the authoritative
// count, leaving promotion to the next Pop's staleness check; a
// non-positive delta only updates the authoritative count.
func (c *Counter) Commit(dm blockstore.DeltaMap) {
	for p, d := range dm {
		_, present := c.authoritative[p]
		c.authoritative[p] += d.Count
		if d.Count > 0 && !present {
			heap.Push(&c.heap, &Entry{Pair: p, Snapshot: d.Count, Hints: d.Hints})
		}
	}
}

// Pop removes and returns the heap's current maximum-snapshot entry. The
// caller must check IsStale before trusting it: Pop does not itself filter
// stale entries.
func (c *Counter) Pop() (Entry, bool) {
	if c.heap.Len() == 0 {
		return Entry{}, false
	}
	e := heap.Pop(&c.heap).(*Entry)
	return *e, true
}

// IsStale reports whether entry's snapshot no longer matches the
// authoritative count for its pair.
func (c *Counter) IsStale(e Entry) bool {
	return e.Snapshot != c.authoritative[e.Pair]
}

// ReinsertRefreshed pushes entry back onto the heap with its snapshot
// refreshed to the current authoritative count.
func (c *Counter) ReinsertRefreshed(e Entry) {
	e.Snapshot = c.authoritative[e.Pair]
	heap.Push(&c.heap, &e)
}

// ScanLocal counts every adjacent pair once per block (weighted by the
// block's repetition count) and records, per pair, the set of local block
// indices containing it. The returned counts are local-only and must be
// reduced through the collective before being committed, so that every
// peer's counter starts from a globally consistent baseline. ScanLocal runs
// the scan on GOMAXPROCS workers over disjoint block ranges.
func ScanLocal(store *blockstore.Store) (counts []collective.KV, hints map[collective.Pair][]int) {
	return ScanLocalWithWorkers(store, runtime.GOMAXPROCS(-1))
}

// ScanLocalWithWorkers is ScanLocal with an explicit worker count, exposed
// for tests that want deterministic single-threaded behavior.
func ScanLocalWithWorkers(store *blockstore.Store, workers int) (counts []collective.KV, hints map[collective.Pair][]int) {
	n := store.Len()
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		return scanRange(store, 0, n)
	}

	type partial struct {
		counts []collective.KV
		hints  map[collective.Pair][]int
	}
	parts := make([]partial, workers)
	chunk := (n + workers - 1) / workers

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		w := w
		start := w * chunk
		if start >= n {
			continue
		}
		end := start + chunk
		if end > n {
			end = n
		}
		g.Go(func() error {
			c, h := scanRange(store, start, end)
			parts[w] = partial{counts: c, hints: h}
			return nil
		})
	}
	// scanRange never errors; Wait only serves as the join point.
	_ = g.Wait()

	countMap := make(map[collective.Pair]int64)
	hints = make(map[collective.Pair][]int)
	order := make([]collective.Pair, 0)
	for _, p := range parts {
		for _, kv := range p.counts {
			if _, ok := countMap[kv.Key]; !ok {
				order = append(order, kv.Key)
			}
			countMap[kv.Key] += kv.Value
		}
		for pair, idxs := range p.hints {
			hints[pair] = append(hints[pair], idxs...)
		}
	}
	counts = make([]collective.KV, len(order))
	for i, p := range order {
		counts[i] = collective.KV{Key: p, Value: countMap[p]}
	}
	return counts, hints
}

func scanRange(store *blockstore.Store, start, end int) ([]collective.KV, map[collective.Pair][]int) {
	countMap := make(map[collective.Pair]int64)
	hints := make(map[collective.Pair][]int)
	order := make([]collective.Pair, 0)

	for idx := start; idx < end; idx++ {
		blk := store.Block(idx)
		tokens := blk.Tokens
		weight := int64(blk.Count)
		seenInBlock := make(map[collective.Pair]bool)
		for i := 0; i+1 < len(tokens); i++ {
			p := collective.Pair{A: tokens[i], B: tokens[i+1]}
			if _, ok := countMap[p]; !ok {
				order = append(order, p)
			}
			countMap[p] += weight
			if !seenInBlock[p] {
				hints[p] = append(hints[p], idx)
				seenInBlock[p] = true
			}
		}
	}

	counts := make([]collective.KV, len(order))
	for i, p := range order {
		counts[i] = collective.KV{Key: p, Value: countMap[p]}
	}
	return counts, hints
}

type pairHeap []*Entry

func (h pairHeap) Len() int { return len(h) }

func (h pairHeap) Less(i, j int) bool {
	if h[i].Snapshot != h[j].Snapshot {
		return h[i].Snapshot > h[j].Snapshot // max-heap.
	}
	return h[i].Pair.Less(h[j].Pair)
}

func (h pairHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pairHeap) Push(x interface{}) {
	*h = append(*h, x.(*Entry))
}

func (h *pairHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
