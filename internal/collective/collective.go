// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package collective implements the all-reduce primitive that keeps every
// peer's view of pair-count deltas identical despite each peer owning a
// disjoint, locally-ordered slice of the global corpus.
package collective

import (
	"context"
	"encoding/binary"
	"fmt"
)

// Pair is an ordered tuple of two tokens representing an adjacent occurrence.
type Pair struct {
	A, B uint32
}

// Less imposes the total order over pairs that the training driver relies
// on to break count ties deterministically across peers: lexicographic on
// (a, b), independent of any peer's local map-iteration order.
func (p Pair) Less(o Pair) bool {
	if p.A != o.A {
		return p.A < o.A
	}
	return p.B < o.B
}

// KV is a single keyed contribution to a collective reduction.
type KV struct {
	Key   Pair
	Value int64
}

const entrySize = 16 // two uint64 words: encoded key, bit-cast value.

func encodeKey(p Pair) uint64 {
	return uint64(p.A)<<32 | uint64(p.B)
}

func decodeKey(w uint64) Pair {
	return Pair{A: uint32(w >> 32), B: uint32(w)}
}

// encode packs local contributions into the wire format all_reduce
// exchanges: each entry is the key encoded as (a<<32)|b followed by the
// value reinterpreted bit-for-bit as unsigned, both little-endian.
func encode(local []KV) []byte {
	buf := make([]byte, len(local)*entrySize)
	for i, kv := range local {
		off := i * entrySize
		binary.LittleEndian.PutUint64(buf[off:], encodeKey(kv.Key))
		binary.LittleEndian.PutUint64(buf[off+8:], uint64(kv.Value))
	}
	return buf
}

func decode(buf []byte) ([]KV, error) {
	if len(buf)%entrySize != 0 {
		return nil, fmt.Errorf("collective: malformed buffer: %d bytes is not a multiple of %d", len(buf), entrySize)
	}
	n := len(buf) / entrySize
	out := make([]KV, n)
	for i := 0; i < n; i++ {
		off := i * entrySize
		out[i] = KV{
			Key:   decodeKey(binary.LittleEndian.Uint64(buf[off:])),
			Value: int64(binary.LittleEndian.Uint64(buf[off+8:])),
		}
	}
	return out, nil
}

// Transport is the seam a distributed driver plugs a real multi-process
// exchange into. AllGather must return, to every caller across all ranks,
// the same slice of byte buffers indexed by rank.
type Transport interface {
	Rank() int
	Size() int
	AllGather(ctx context.Context, local []byte) ([][]byte, error)
}

// AllReduce sums per-key values across all peers: it encodes local,
// exchanges it via t.AllGather, then walks the gathered buffers in rank order,
// accumulating per key into a map while recording first-seen insertion
// order. The result is returned in that first-seen order and is therefore
// identical on every peer for the same distributed inputs. Zero-valued
// results are not filtered; callers decide whether a zero delta matters.
func AllReduce(ctx context.Context, t Transport, local []KV) ([]KV, error) {
	bufs, err := t.AllGather(ctx, encode(local))
	if err != nil {
		return nil, fmt.Errorf("collective: all_gather failed: %w", err)
	}
	acc := make(map[Pair]int64)
	order := make([]Pair, 0, len(local))
	for rank, buf := range bufs {
		entries, err := decode(buf)
		if err != nil {
			return nil, fmt.Errorf("collective: rank %d: %w", rank, err)
		}
		for _, e := range entries {
			if _, seen := acc[e.Key]; !seen {
				order = append(order, e.Key)
			}
			acc[e.Key] += e.Value
		}
	}
	out := make([]KV, len(order))
	for i, k := range order {
		out[i] = KV{Key: k, Value: acc[k]}
	}
	return out, nil
}
