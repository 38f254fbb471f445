// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bpekit

import "container/heap"

// tokenNode is one position in the encoder's working sequence: an arena
// entry addressed by integer index rather than a pointer, avoiding cyclic
// reference-counted nodes. prev/next use -1 for "absent" instead of an
// optional type. width == 0 marks a slot swallowed by a prior merge.
type tokenNode struct {
	val        Token
	prev, next int
	width      int
}

const noNode = -1

// candidate is a (left_position, new_token) record in the encoder's
// min-heap, ordered primarily by new_token ascending (earliest-trained
// merge first) and secondarily by idx ascending for determinism.
type candidate struct {
	idx      int
	newToken Token
}

type candidateHeap []candidate

func (h candidateHeap) Len() int { return len(h) }

func (h candidateHeap) Less(i, j int) bool {
	if h[i].newToken != h[j].newToken {
		return h[i].newToken < h[j].newToken
	}
	return h[i].idx < h[j].idx
}

func (h candidateHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *candidateHeap) Push(x interface{}) {
	*h = append(*h, x.(candidate))
}

func (h *candidateHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// Encode applies table to input: it threads a doubly-linked arena of token
// nodes through a min-heap of candidate merges, always applying the
// lowest-ranked (smallest new_token) applicable merge next, which is
// equivalent to the left-to-right greedy algorithm that always picks the
// earliest-trained applicable merge.
func Encode(input []byte, table *MergeTable) []Token {
	n := len(input)
	if n == 0 {
		return nil
	}

	nodes := make([]tokenNode, n)
	for i, b := range input {
		prev, next := i-1, i+1
		if i == 0 {
			prev = noNode
		}
		if i == n-1 {
			next = noNode
		}
		nodes[i] = tokenNode{val: Token(b), prev: prev, next: next, width: 1}
	}

	var h candidateHeap
	heap.Init(&h)
	for i := 0; i < n-1; i++ {
		if t, ok := table.Lookup(nodes[i].val, nodes[i+1].val); ok {
			heap.Push(&h, candidate{idx: i, newToken: t})
		}
	}

	for h.Len() > 0 {
		c := heap.Pop(&h).(candidate)
		idx := c.idx

		r := nodes[idx].next
		if r == noNode { // right-existence check
			continue
		}
		if nodes[idx].width == 0 { // swallowed check
			continue
		}
		t, ok := table.Lookup(nodes[idx].val, nodes[r].val)
		if !ok || t != c.newToken { // pointer-staleness check
			continue
		}

		// Apply merge.
		nodes[idx].val = t
		nodes[idx].width += nodes[r].width
		nodes[idx].next = nodes[r].next
		nodes[r].width = 0

		if next := nodes[idx].next; next != noNode {
			nodes[next].prev = idx
			if nt, ok := table.Lookup(nodes[idx].val, nodes[next].val); ok {
				heap.Push(&h, candidate{idx: idx, newToken: nt})
			}
		}
		if p := nodes[idx].prev; p != noNode {
			if pt, ok := table.Lookup(nodes[p].val, nodes[idx].val); ok {
				heap.Push(&h, candidate{idx: p, newToken: pt})
			}
		}
	}

	out := make([]Token, 0, n)
	for i := 0; i != noNode; i = nodes[i].next {
		if nodes[i].width > 0 {
			out = append(out, nodes[i].val)
		}
	}
	return out
}
