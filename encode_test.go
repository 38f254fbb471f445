// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bpekit_test

import (
	"reflect"
	"testing"

	"github.com/jamiestephenson/bpekit-go"
)

func mustTable(t *testing.T, rules []bpekit.MergeRule) *bpekit.MergeTable {
	t.Helper()
	tbl, err := bpekit.NewMergeTable(rules)
	if err != nil {
		t.Fatalf("NewMergeTable: %v", err)
	}
	return tbl
}

func TestEncodeEmptyInput(t *testing.T) {
	tbl := mustTable(t, nil)
	if got := bpekit.Encode(nil, tbl); got != nil {
		t.Errorf("Encode(nil) = %v, want nil", got)
	}
}

func TestEncodeNoApplicableMerges(t *testing.T) {
	tbl := mustTable(t, nil)
	got := bpekit.Encode([]byte("abc"), tbl)
	want := []bpekit.Token{'a', 'b', 'c'}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode = %v, want %v", got, want)
	}
}

// Scenario B, encoder-side: input bytes X X X with (X,X) -> 256.
func TestEncodeTriple(t *testing.T) {
	tbl := mustTable(t, []bpekit.MergeRule{{Pair: bpekit.Pair{A: 'l', B: 'l'}, NewToken: 256}})
	got := bpekit.Encode([]byte("lll"), tbl)
	want := []bpekit.Token{256, 'l'}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode(lll) = %v, want %v", got, want)
	}
}

// Scenario D: merge table {(a,b)->X, (b,c)->Y}, X<Y -> output [X,c].
func TestEncodeStalenessSwallowed(t *testing.T) {
	tbl := mustTable(t, []bpekit.MergeRule{
		{Pair: bpekit.Pair{A: 'a', B: 'b'}, NewToken: 256},
		{Pair: bpekit.Pair{A: 'b', B: 'c'}, NewToken: 257},
	})
	got := bpekit.Encode([]byte("abc"), tbl)
	want := []bpekit.Token{256, 'c'}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode(abc) = %v, want %v", got, want)
	}
}

// Scenario E: merge table {(b,c)->Y, (a,b)->X}, Y<X -> output [a,Y].
func TestEncodeStalenessNewPointer(t *testing.T) {
	tbl := mustTable(t, []bpekit.MergeRule{
		{Pair: bpekit.Pair{A: 'b', B: 'c'}, NewToken: 256},
		{Pair: bpekit.Pair{A: 'a', B: 'b'}, NewToken: 257},
	})
	got := bpekit.Encode([]byte("abc"), tbl)
	want := []bpekit.Token{'a', 256}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Encode(abc) = %v, want %v", got, want)
	}
}

// Property 5: encoder output contains no adjacent token pair present in the
// merge table.
func TestEncodeOutputHasNoApplicablePairs(t *testing.T) {
	tbl := mustTable(t, []bpekit.MergeRule{
		{Pair: bpekit.Pair{A: 't', B: 'h'}, NewToken: 256},
		{Pair: bpekit.Pair{A: 256, B: 'e'}, NewToken: 257},
		{Pair: bpekit.Pair{A: 'r', B: 'e'}, NewToken: 258},
	})
	got := bpekit.Encode([]byte("the there"), tbl)
	for i := 0; i+1 < len(got); i++ {
		if _, ok := tbl.Lookup(got[i], got[i+1]); ok {
			t.Errorf("adjacent tokens %d,%d at position %d still have an applicable merge", got[i], got[i+1], i)
		}
	}
}

// Property 6 / round-trip: encoding then recursively expanding merges back
// to bytes returns the original input.
func expand(tokens []bpekit.Token, tbl *bpekit.MergeTable) []byte {
	byNewToken := make(map[bpekit.Token]bpekit.Pair, tbl.Len())
	for _, r := range tbl.Rules() {
		byNewToken[r.NewToken] = r.Pair
	}
	var out []byte
	var rec func(t bpekit.Token)
	rec = func(t bpekit.Token) {
		if p, ok := byNewToken[t]; ok {
			rec(p.A)
			rec(p.B)
			return
		}
		out = append(out, byte(t))
	}
	for _, t := range tokens {
		rec(t)
	}
	return out
}

func TestEncodeRoundTrip(t *testing.T) {
	tbl := mustTable(t, []bpekit.MergeRule{
		{Pair: bpekit.Pair{A: 'a', B: 'b'}, NewToken: 256},
		{Pair: bpekit.Pair{A: 256, B: 'c'}, NewToken: 257},
	})
	input := []byte("abcabcx")
	encoded := bpekit.Encode(input, tbl)
	if got, want := expand(encoded, tbl), input; !reflect.DeepEqual(got, want) {
		t.Errorf("round trip = %q, want %q", got, want)
	}
}
