// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package blockstore owns a peer's tokenized training blocks and applies
// merge rules across disjoint subsets of them in parallel.
package blockstore

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/jamiestephenson/bpekit-go/internal/collective"
)

// Block is a single pre-segmented unit of training text: a mutable token
// sequence, a repetition count (how many times this exact byte sequence
// occurred in the corpus), and its index is implicit in its position in the
// owning Store.
type Block struct {
	Tokens []uint32
	Count  uint64
}

// Delta is one pair's contribution from a single merge dispatch: a signed
// count change plus the block indices newly known to contain the pair.
// Hints are populated only when Count is positive; a negative-only entry
// carries a nil/empty Hints.
type Delta struct {
	Count int64
	Hints []int
}

// DeltaMap maps a pair to its accumulated Delta from one or more Merge
// calls.
type DeltaMap map[collective.Pair]Delta

// Store owns the peer's blocks. It is built once from the deduplicated
// corpus and thereafter mutated in place, exclusively by Merge/MergeMany.
type Store struct {
	blocks []Block
}

// New deduplicates the given byte strings into (bytes, count) pairs,
// converts each byte to a Token, and assigns each distinct block a stable
// index equal to its position in the returned Store.
func New(inputs [][]byte) *Store {
	counts := make(map[string]uint64, len(inputs))
	order := make([]string, 0, len(inputs))
	for _, b := range inputs {
		key := string(b)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}
	blocks := make([]Block, len(order))
	for i, key := range order {
		tokens := make([]uint32, len(key))
		for j := 0; j < len(key); j++ {
			tokens[j] = uint32(key[j])
		}
		blocks[i] = Block{Tokens: tokens, Count: counts[key]}
	}
	return &Store{blocks: blocks}
}

// Len returns the number of distinct blocks owned by this peer.
func (s *Store) Len() int { return len(s.blocks) }

// Block returns a copy of the block's metadata; Tokens aliases the live
// backing array and must be treated as read-only by callers outside Merge.
func (s *Store) Block(idx int) Block { return s.blocks[idx] }

// Merge scans block idx left-to-right for adjacent (left, right) pairs and
// replaces each with newToken. It returns the resulting delta map for this
// block alone; the caller folds per-block delta maps produced by concurrent
// Merge calls over disjoint indices.
func (s *Store) Merge(idx int, left, right, newToken uint32) DeltaMap {
	delta := make(DeltaMap)
	add := func(p collective.Pair, d int64) {
		e := delta[p]
		e.Count += d
		delta[p] = e
	}

	blk := &s.blocks[idx]
	tokens := blk.Tokens
	count := int64(blk.Count)

	i := 0
	for i < len(tokens)-1 {
		if tokens[i] != left || tokens[i+1] != right {
			i++
			continue
		}
		add(collective.Pair{A: left, B: right}, -count)
		if i > 0 {
			add(collective.Pair{A: tokens[i-1], B: left}, -count)
			add(collective.Pair{A: tokens[i-1], B: newToken}, count)
		}
		tokens[i] = newToken
		tokens = append(tokens[:i+1], tokens[i+2:]...)
		if i+1 < len(tokens) {
			next := tokens[i+1]
			add(collective.Pair{A: right, B: next}, -count)
			add(collective.Pair{A: newToken, B: next}, count)
		}
		// Continue at i+1: new new must not be reprocessed at this position.
		i++
	}
	blk.Tokens = tokens

	for p, e := range delta {
		if e.Count > 0 {
			e.Hints = []int{idx}
		} else {
			e.Hints = nil
		}
		delta[p] = e
	}
	return delta
}

// MergeMany dispatches Merge across the given disjoint block indices in
// parallel worker goroutines and folds the resulting per-block delta maps
// into one by summing counts and concatenating hint lists. The caller
// guarantees the indices are distinct; duplicates would race on the same
// block's Tokens slice. workers bounds the number of goroutines used for
// the fan-out; zero or negative leaves it unbounded (one goroutine per
// index).
func (s *Store) MergeMany(blockIdxs []int, left, right, newToken uint32, workers int) (DeltaMap, error) {
	parts := make([]DeltaMap, len(blockIdxs))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, idx := range blockIdxs {
		i, idx := i, idx
		g.Go(func() error {
			if idx < 0 || idx >= len(s.blocks) {
				return fmt.Errorf("blockstore: block index %d out of range [0,%d)", idx, len(s.blocks))
			}
			parts[i] = s.Merge(idx, left, right, newToken)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(DeltaMap)
	for _, dm := range parts {
		for p, d := range dm {
			e := out[p]
			e.Count += d.Count
			if d.Count > 0 {
				e.Hints = append(e.Hints, d.Hints...)
			}
			out[p] = e
		}
	}
	return out, nil
}
