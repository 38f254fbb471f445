// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package bpekit trains and applies byte-pair-encoding tokenizers over
// large, peer-partitioned text corpora. Training (Train) learns an ordered
// list of merge rules by repeatedly combining the globally most frequent
// adjacent token pair; encoding (Encode) applies a learned merge table to a
// single byte string.
package bpekit

import "fmt"

// Token identifies a byte (0-255) or a learned merge (>= FirstMergeToken).
type Token = uint32

// FirstMergeToken is the first token identifier assigned to a learned
// merge; every raw byte occupies [0, FirstMergeToken).
const FirstMergeToken Token = 256

// Pair is an ordered pair of adjacent tokens.
type Pair struct {
	A, B Token
}

// MergeRule is one entry of a learned merge table: replacing adjacent
// occurrences of Pair with NewToken. Rank is NewToken - FirstMergeToken,
// i.e. the merge's position in training order.
type MergeRule struct {
	Pair     Pair
	NewToken Token
}

// Rank returns the merge's position in the ordered merge list.
func (m MergeRule) Rank() int { return int(m.NewToken) - int(FirstMergeToken) }

// MergeTable is the immutable, ordered result of a training run: a lookup
// from pair to the token it merges into, plus the rules in training order
// for persistence.
type MergeTable struct {
	rules []MergeRule
	byKey map[Pair]Token
}

// NewMergeTable builds a lookup table from merge rules in training order.
// It returns an error if a pair is duplicated or the new_tokens are not
// assigned densely in order starting at FirstMergeToken.
func NewMergeTable(rules []MergeRule) (*MergeTable, error) {
	t := &MergeTable{
		rules: make([]MergeRule, len(rules)),
		byKey: make(map[Pair]Token, len(rules)),
	}
	copy(t.rules, rules)
	next := FirstMergeToken
	for _, r := range t.rules {
		if r.NewToken < FirstMergeToken {
			return nil, fmt.Errorf("bpekit: merge table entry %+v: new_token < %d", r, FirstMergeToken)
		}
		if r.NewToken != next {
			return nil, fmt.Errorf("bpekit: merge table entry %+v: new_token must be assigned densely starting at %d (expected %d)", r, FirstMergeToken, next)
		}
		if _, dup := t.byKey[r.Pair]; dup {
			return nil, fmt.Errorf("bpekit: merge table entry %+v: duplicate mapping for pair %+v", r, r.Pair)
		}
		t.byKey[r.Pair] = r.NewToken
		next++
	}
	return t, nil
}

// Lookup returns the token that (a, b) merges to, and whether a rule exists.
func (t *MergeTable) Lookup(a, b Token) (Token, bool) {
	tok, ok := t.byKey[Pair{A: a, B: b}]
	return tok, ok
}

// Rules returns the merge rules in training order. The returned slice must
// not be mutated by the caller.
func (t *MergeTable) Rules() []MergeRule { return t.rules }

// Len returns the number of merge rules, i.e. the learned vocabulary size
// beyond the 256 raw bytes.
func (t *MergeTable) Len() int { return len(t.rules) }
