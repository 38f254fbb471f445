// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bpekit

import (
	"context"
	"fmt"

	"github.com/jamiestephenson/bpekit-go/shard"
)

// EncodeDataset reads source to exhaustion, encodes each block independently
// with table, and concatenates the resulting tokens in arrival order into
// fixed-size shardSize shards written under dir for the given peer rank. An
// I/O failure aborts the run; shards already flushed to disk remain.
func EncodeDataset(ctx context.Context, source BlockSource, table *MergeTable, dir string, shardSize, rank int) error {
	w, err := shard.NewWriter(ctx, dir, rank, shardSize)
	if err != nil {
		return fmt.Errorf("bpekit: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		block, ok, err := source.Next()
		if err != nil {
			return fmt.Errorf("bpekit: reading dataset input: %w", err)
		}
		if !ok {
			break
		}
		if err := w.Write(Encode(block, table)); err != nil {
			return fmt.Errorf("bpekit: writing shard: %w", err)
		}
	}
	return w.Close()
}
