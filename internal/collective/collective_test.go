// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package collective_test

import (
	"context"
	"reflect"
	"sync"
	"testing"

	"github.com/jamiestephenson/bpekit-go/internal/collective"
)

func pair(a, b uint32) collective.Pair { return collective.Pair{A: a, B: b} }

func runGroup(t *testing.T, contributions [][]collective.KV) [][]collective.KV {
	t.Helper()
	transports := collective.NewLocalGroup(len(contributions))
	results := make([][]collective.KV, len(contributions))
	var wg sync.WaitGroup
	wg.Add(len(contributions))
	for i := range contributions {
		i := i
		go func() {
			defer wg.Done()
			out, err := collective.AllReduce(context.Background(), transports[i], contributions[i])
			if err != nil {
				t.Errorf("peer %d: %v", i, err)
				return
			}
			results[i] = out
		}()
	}
	wg.Wait()
	return results
}

func TestAllReduceSumsAcrossPeers(t *testing.T) {
	contributions := [][]collective.KV{
		{{Key: pair(1, 2), Value: 3}, {Key: pair(2, 3), Value: 1}},
		{{Key: pair(1, 2), Value: 4}, {Key: pair(3, 4), Value: 2}},
	}
	results := runGroup(t, contributions)

	want := []collective.KV{
		{Key: pair(1, 2), Value: 7},
		{Key: pair(2, 3), Value: 1},
		{Key: pair(3, 4), Value: 2},
	}
	for i, got := range results {
		if !reflect.DeepEqual(got, want) {
			t.Errorf("peer %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestAllReduceFirstSeenOrderIsRankOrder(t *testing.T) {
	contributions := [][]collective.KV{
		{{Key: pair(9, 9), Value: 1}},
		{{Key: pair(0, 0), Value: 1}},
		{{Key: pair(9, 9), Value: 1}, {Key: pair(5, 5), Value: 1}},
	}
	results := runGroup(t, contributions)
	want := []collective.Pair{pair(9, 9), pair(0, 0), pair(5, 5)}
	for i, got := range results {
		if len(got) != len(want) {
			t.Fatalf("peer %d: got %d entries, want %d", i, len(got), len(want))
		}
		for j, kv := range got {
			if kv.Key != want[j] {
				t.Errorf("peer %d entry %d: got key %+v, want %+v", i, j, kv.Key, want[j])
			}
		}
	}
}

func TestAllReduceDoesNotFilterZero(t *testing.T) {
	contributions := [][]collective.KV{
		{{Key: pair(1, 1), Value: 5}},
		{{Key: pair(1, 1), Value: -5}},
	}
	results := runGroup(t, contributions)
	want := []collective.KV{{Key: pair(1, 1), Value: 0}}
	for i, got := range results {
		if !reflect.DeepEqual(got, want) {
			t.Errorf("peer %d: got %+v, want %+v", i, got, want)
		}
	}
}

func TestAllReduceSinglePeerIsIdentity(t *testing.T) {
	local := []collective.KV{{Key: pair(1, 2), Value: 7}, {Key: pair(3, 4), Value: -2}}
	results := runGroup(t, [][]collective.KV{local})
	if !reflect.DeepEqual(results[0], local) {
		t.Errorf("got %+v, want %+v", results[0], local)
	}
	again := runGroup(t, [][]collective.KV{results[0]})
	if !reflect.DeepEqual(again[0], local) {
		t.Errorf("re-reduce: got %+v, want %+v", again[0], local)
	}
}

func TestPairLess(t *testing.T) {
	cases := []struct {
		a, b collective.Pair
		want bool
	}{
		{pair(1, 2), pair(1, 3), true},
		{pair(1, 3), pair(1, 2), false},
		{pair(1, 9), pair(2, 0), true},
		{pair(2, 0), pair(1, 9), false},
		{pair(1, 1), pair(1, 1), false},
	}
	for _, c := range cases {
		if got := c.a.Less(c.b); got != c.want {
			t.Errorf("%+v.Less(%+v) = %v, want %v", c.a, c.b, got, c.want)
		}
	}
}
