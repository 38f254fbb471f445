// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package shard serializes an encoded token stream to fixed-size binary
// shard files, through grailbio/base/file so a shard directory may be a
// local path or an s3:// URI.
package shard

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/grailbio/base/file"
)

// Writer accumulates tokens and flushes contiguous fixed-size windows of
// Size tokens to files named "<rank>_<split>__<shardindex>" under Dir. The
// final, possibly-short shard is named "val" if at least one full "train"
// shard was already written, and "train" otherwise.
type Writer struct {
	ctx  context.Context
	dir  string
	rank int
	size int

	buf            []uint32
	shardIndex     int
	wroteFullShard bool
}

// NewWriter returns a Writer for peer rank writing shardSize-token shards
// under dir.
func NewWriter(ctx context.Context, dir string, rank, shardSize int) (*Writer, error) {
	if shardSize <= 0 {
		return nil, fmt.Errorf("shard: shard size must be positive, got %d", shardSize)
	}
	return &Writer{ctx: ctx, dir: dir, rank: rank, size: shardSize}, nil
}

// Write appends tokens to the writer's pending buffer, flushing every full
// shard as soon as enough tokens have accumulated.
func (w *Writer) Write(tokens []uint32) error {
	w.buf = append(w.buf, tokens...)
	for len(w.buf) >= w.size {
		if err := w.flush(w.buf[:w.size], "train"); err != nil {
			return err
		}
		w.buf = w.buf[w.size:]
		w.wroteFullShard = true
		w.shardIndex++
	}
	return nil
}

// Close flushes any remaining tokens as a final, possibly-short shard and
// releases resources. It is a no-op if no tokens remain.
func (w *Writer) Close() error {
	if len(w.buf) == 0 {
		return nil
	}
	split := "train"
	if w.wroteFullShard {
		split = "val"
	}
	if err := w.flush(w.buf, split); err != nil {
		return err
	}
	w.buf = nil
	return nil
}

func (w *Writer) flush(tokens []uint32, split string) error {
	name := fmt.Sprintf("%d_%s__%06d", w.rank, split, w.shardIndex)
	path := joinPath(w.dir, name)

	f, err := file.Create(w.ctx, path)
	if err != nil {
		return fmt.Errorf("shard: create %s: %w", path, err)
	}
	buf := make([]byte, 4*len(tokens))
	for i, t := range tokens {
		binary.LittleEndian.PutUint32(buf[i*4:], t)
	}
	if _, err := f.Writer(w.ctx).Write(buf); err != nil {
		f.Close(w.ctx)
		return fmt.Errorf("shard: write %s: %w", path, err)
	}
	if err := f.Close(w.ctx); err != nil {
		return fmt.Errorf("shard: close %s: %w", path, err)
	}
	return nil
}

// joinPath concatenates dir and name with a single slash, avoiding
// path.Join's collapsing of "//" that would corrupt an s3:// URI.
func joinPath(dir, name string) string {
	return strings.TrimSuffix(dir, "/") + "/" + name
}
