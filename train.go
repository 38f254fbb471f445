// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bpekit

import (
	"context"
	"fmt"
	"math"
	"unicode/utf8"

	"github.com/jamiestephenson/bpekit-go/internal/blockstore"
	"github.com/jamiestephenson/bpekit-go/internal/collective"
	"github.com/jamiestephenson/bpekit-go/internal/paircounter"
)

type trainOptions struct {
	skipInvalidUTF8 bool
	workers         int
	onStep          func(vocabSize, targetVocabSize int)
}

// TrainOption configures a Train call.
type TrainOption func(*trainOptions)

// TrainSkipInvalidUTF8 controls whether a non-UTF-8 block aborts the run
// (the default) or is silently excluded from the corpus instead.
func TrainSkipInvalidUTF8(skip bool) TrainOption {
	return func(o *trainOptions) { o.skipInvalidUTF8 = skip }
}

// TrainWorkers bounds the number of goroutines used to fan out a single
// step's parallel merge dispatch. Zero (the default) leaves it unbounded,
// one per hinted block.
func TrainWorkers(n int) TrainOption {
	return func(o *trainOptions) { o.workers = n }
}

// TrainProgress registers a callback invoked once after every completed
// merge step, with the vocabulary size reached so far and the target. It is
// not called for steps skipped due to a stale heap entry.
func TrainProgress(fn func(vocabSize, targetVocabSize int)) TrainOption {
	return func(o *trainOptions) { o.onStep = fn }
}

// Train runs the merge loop for a single peer participating in the
// collective identified by transport. It reads the entirety of source into
// memory, builds a local block store and pair counter, seeds the counter
// from a globally-reduced initial scan, and then repeatedly pops,
// validates, merges, and globally re-commits pairs until targetVocabSize is
// reached or no candidate pairs remain.
func Train(ctx context.Context, source BlockSource, targetVocabSize int, transport collective.Transport, opts ...TrainOption) (*MergeTable, error) {
	o := trainOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	if targetVocabSize < 0 || uint64(targetVocabSize) > math.MaxUint32 {
		return nil, fmt.Errorf("bpekit: capacity error: target vocabulary size %d exceeds 2^32-1", targetVocabSize)
	}

	blocks, err := readAllBlocks(ctx, source, o.skipInvalidUTF8)
	if err != nil {
		return nil, err
	}

	store := blockstore.New(blocks)

	localCounts, localHints := paircounter.ScanLocal(store)
	globalCounts, err := collective.AllReduce(ctx, transport, localCounts)
	if err != nil {
		return nil, fmt.Errorf("bpekit: collective error: initial reduction: %w", err)
	}

	counter := paircounter.New()
	counter.Commit(buildDeltaMap(globalCounts, localHints))

	var rules []MergeRule
	vocab := FirstMergeToken
	for int(vocab) < targetVocabSize {
		entry, ok := counter.Pop()
		if !ok {
			break
		}
		if counter.IsStale(entry) {
			counter.ReinsertRefreshed(entry)
			continue
		}

		rules = append(rules, MergeRule{Pair: entry.Pair, NewToken: vocab})

		localDelta, err := store.MergeMany(entry.Hints, entry.Pair.A, entry.Pair.B, vocab, o.workers)
		if err != nil {
			return nil, fmt.Errorf("bpekit: merge phase for vocab %d: %w", vocab, err)
		}

		globalDelta, err := collective.AllReduce(ctx, transport, toKV(localDelta))
		if err != nil {
			return nil, fmt.Errorf("bpekit: collective error: step %d reduction: %w", vocab-FirstMergeToken, err)
		}

		counter.Commit(buildDeltaMap(globalDelta, localHintsFrom(localDelta)))
		vocab++
		if o.onStep != nil {
			o.onStep(int(vocab), targetVocabSize)
		}
	}

	return NewMergeTable(rules)
}

// readAllBlocks drains source into memory, enforcing the UTF-8 input policy
// selected by skipInvalid.
func readAllBlocks(ctx context.Context, source BlockSource, skipInvalid bool) ([][]byte, error) {
	var blocks [][]byte
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		block, ok, err := source.Next()
		if err != nil {
			return nil, fmt.Errorf("bpekit: reading corpus: %w", err)
		}
		if !ok {
			return blocks, nil
		}
		if !utf8.Valid(block) {
			if skipInvalid {
				continue
			}
			return nil, fmt.Errorf("bpekit: input error: block is not valid UTF-8")
		}
		blocks = append(blocks, block)
	}
}

// toKV flattens a block-store delta map into the sequence AllReduce
// expects. Iteration order is immaterial: AllReduce sums by key regardless
// of the order contributions arrive in.
func toKV(dm blockstore.DeltaMap) []collective.KV {
	out := make([]collective.KV, 0, len(dm))
	for p, d := range dm {
		out = append(out, collective.KV{Key: p, Value: d.Count})
	}
	return out
}

// localHintsFrom extracts the local block-index hints a delta map carries,
// so they can be paired with the globally-reduced counts for the same
// pairs: hints stay local even though counts are global.
func localHintsFrom(dm blockstore.DeltaMap) map[collective.Pair][]int {
	out := make(map[collective.Pair][]int, len(dm))
	for p, d := range dm {
		if len(d.Hints) > 0 {
			out[p] = d.Hints
		}
	}
	return out
}

// buildDeltaMap rebuilds a blockstore.DeltaMap from globally-reduced counts
// paired with this peer's own local hints, ready to hand to
// paircounter.Counter.Commit.
func buildDeltaMap(global []collective.KV, localHints map[collective.Pair][]int) blockstore.DeltaMap {
	dm := make(blockstore.DeltaMap, len(global))
	d := blockstore.Delta{}
	for _, kv := range global {
		d.Count = kv.Value
		d.Hints = nil
		if kv.Value > 0 {
			d.Hints = localHints[kv.Key]
		}
		dm[kv.Key] = d
	}
	return dm
}
