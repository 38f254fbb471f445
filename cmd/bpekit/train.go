// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"fmt"
	"os"

	"cloudeng.io/cmdutil"
	"github.com/jamiestephenson/bpekit-go"
	"github.com/jamiestephenson/bpekit-go/corpus"
	"github.com/jamiestephenson/bpekit-go/internal/collective"
)

func train(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*trainFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	source := corpus.NewBzip2Source(ctx, args)

	// A standalone invocation is a single-peer collective: LocalTransport
	// with a group size of one reduces to the identity. A multi-process
	// run is driven externally, one binary per peer, each pointed at its
	// shard of the corpus.
	transport := collective.NewLocalGroup(1)[0]

	opts := []bpekit.TrainOption{
		bpekit.TrainSkipInvalidUTF8(cl.SkipInvalidUTF8),
		bpekit.TrainWorkers(cl.Concurrency),
	}

	wr := os.Stderr
	if cl.ProgressBar && !isNonInteractive() {
		bar := countBar(wr, cl.VocabSize-int(bpekit.FirstMergeToken), "training")
		defer bar.Finish()
		opts = append(opts, bpekit.TrainProgress(func(int, int) { bar.Add(1) }))
	} else {
		fmt.Fprintf(wr, "training to vocab size %d\n", cl.VocabSize)
	}

	table, err := bpekit.Train(ctx, source, cl.VocabSize, transport, opts...)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}

	out, err := os.Create(cl.MergesOut)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	defer out.Close()
	if err := bpekit.SaveMerges(out, table); err != nil {
		return fmt.Errorf("train: %w", err)
	}
	fmt.Fprintf(wr, "wrote %d merges to %s\n", table.Len(), cl.MergesOut)
	return nil
}
