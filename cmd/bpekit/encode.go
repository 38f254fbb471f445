// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io/ioutil"
	"os"

	"cloudeng.io/cmdutil"
	"cloudeng.io/errors"
	"github.com/jamiestephenson/bpekit-go"
	"github.com/jamiestephenson/bpekit-go/corpus"
)

func loadMergeTable(path string) (*bpekit.MergeTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bpekit.LoadMerges(f)
}

func encode(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*encodeFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	table, err := loadMergeTable(cl.MergesIn)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	rd, _, readerCleanup, err := openFileOrURL(ctx, args[0])
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	defer readerCleanup(ctx)

	input, err := ioutil.ReadAll(rd)
	if err != nil {
		return fmt.Errorf("encode: reading %s: %w", args[0], err)
	}

	tokens := bpekit.Encode(input, table)

	wr, writerCleanup, err := createFile(ctx, cl.OutputFile)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	buf := make([]byte, 4*len(tokens))
	for i, t := range tokens {
		binary.LittleEndian.PutUint32(buf[i*4:], t)
	}

	errs := &errors.M{}
	_, err = wr.Write(buf)
	errs.Append(err)
	errs.Append(writerCleanup(ctx))
	return errs.Err()
}

func encodeDataset(ctx context.Context, values interface{}, args []string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	cl := values.(*encodeDatasetFlags)
	cmdutil.HandleSignals(cancel, os.Interrupt)

	table, err := loadMergeTable(cl.MergesIn)
	if err != nil {
		return fmt.Errorf("encode-dataset: %w", err)
	}

	source := corpus.NewBzip2Source(ctx, args)

	wr := os.Stderr
	if cl.ProgressBar && !isNonInteractive() {
		fmt.Fprintf(wr, "encoding %d file(s) into %s\n", len(args), cl.OutputDir)
	}

	if err := bpekit.EncodeDataset(ctx, source, table, cl.OutputDir, cl.ShardSize, cl.Rank); err != nil {
		return fmt.Errorf("encode-dataset: %w", err)
	}
	fmt.Fprintf(wr, "wrote shards to %s\n", cl.OutputDir)
	return nil
}
