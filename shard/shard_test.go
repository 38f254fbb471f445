// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package shard_test

import (
	"context"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/jamiestephenson/bpekit-go/shard"
)

func readShard(t *testing.T, path string) []uint32 {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile(%s): %v", path, err)
	}
	if len(data)%4 != 0 {
		t.Fatalf("shard %s has %d bytes, not a multiple of 4", path, len(data))
	}
	out := make([]uint32, len(data)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return out
}

func TestWriterSingleFullShard(t *testing.T) {
	dir := t.TempDir()
	w, err := shard.NewWriter(context.Background(), dir, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]uint32{1, 2, 3, 4}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	got := readShard(t, filepath.Join(dir, "0_train__000000"))
	want := []uint32{1, 2, 3, 4}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d = %d, want %d", i, got[i], want[i])
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "0_val__000001")); err == nil {
		t.Error("did not expect a val shard when input is an exact multiple of shard size")
	}
}

func TestWriterFullShardPlusShortValShard(t *testing.T) {
	dir := t.TempDir()
	w, err := shard.NewWriter(context.Background(), dir, 2, 4)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]uint32{1, 2, 3, 4, 5}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	full := readShard(t, filepath.Join(dir, "2_train__000000"))
	if len(full) != 4 {
		t.Fatalf("full shard len = %d, want 4", len(full))
	}
	short := readShard(t, filepath.Join(dir, "2_val__000001"))
	if len(short) != 1 || short[0] != 5 {
		t.Fatalf("short shard = %v, want [5]", short)
	}
}

func TestWriterShortOnlyInputIsTrainSplit(t *testing.T) {
	dir := t.TempDir()
	w, err := shard.NewWriter(context.Background(), dir, 0, 100)
	if err != nil {
		t.Fatal(err)
	}
	if err := w.Write([]uint32{9, 8, 7}); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	got := readShard(t, filepath.Join(dir, "0_train__000000"))
	if len(got) != 3 {
		t.Fatalf("got %v, want 3 tokens", got)
	}
}
