// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"runtime"
	"strings"

	"cloudeng.io/cmdutil/subcmd"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/schollz/progressbar/v2"
	"golang.org/x/crypto/ssh/terminal"
)

type CommonFlags struct {
	Concurrency int `subcmd:"concurrency,4,'worker concurrency for training/encoding'"`
}

type trainFlags struct {
	CommonFlags
	VocabSize       int    `subcmd:"vocab-size,30000,'target vocabulary size, including the 256 byte tokens'"`
	MergesOut       string `subcmd:"merges-out,merges.bin,'path to write the learned merge table to'"`
	SkipInvalidUTF8 bool   `subcmd:"skip-invalid-utf8,false,'skip blocks that are not valid UTF-8 instead of failing the run'"`
	ProgressBar     bool   `subcmd:"progress,true,display a progress bar"`
}

type encodeFlags struct {
	MergesIn   string `subcmd:"merges-in,merges.bin,'path to a merge table produced by train'"`
	OutputFile string `subcmd:"output,,'output file or s3 path, omit for stdout'"`
}

type encodeDatasetFlags struct {
	MergesIn    string `subcmd:"merges-in,merges.bin,'path to a merge table produced by train'"`
	OutputDir   string `subcmd:"output-dir,,'directory or s3 prefix to write shards to'"`
	ShardSize   int    `subcmd:"shard-size,100000000,'number of tokens per shard'"`
	Rank        int    `subcmd:"rank,0,'this peer rank, used in shard filenames'"`
	ProgressBar bool   `subcmd:"progress,true,print a start message before encoding"`
}

var cmdSet *subcmd.CommandSet

func init() {
	defaultConcurrency := map[string]interface{}{
		"concurrency": runtime.GOMAXPROCS(-1),
	}

	trainCmd := subcmd.NewCommand("train",
		subcmd.MustRegisterFlagStruct(&trainFlags{}, defaultConcurrency, nil),
		train, subcmd.AtLeastNArguments(1))
	trainCmd.Document(`train a BPE merge table from one or more bzip2-compressed corpus files.`)

	encodeCmd := subcmd.NewCommand("encode",
		subcmd.MustRegisterFlagStruct(&encodeFlags{}, nil, nil),
		encode, subcmd.ExactlyNumArguments(1))
	encodeCmd.Document(`encode a single file with a previously trained merge table, writing raw uint32 tokens.`)

	encodeDatasetCmd := subcmd.NewCommand("encode-dataset",
		subcmd.MustRegisterFlagStruct(&encodeDatasetFlags{}, nil, nil),
		encodeDataset, subcmd.AtLeastNArguments(1))
	encodeDatasetCmd.Document(`encode one or more bzip2-compressed corpus files into fixed-size token shards.`)

	cmdSet = subcmd.NewCommandSet(trainCmd, encodeCmd, encodeDatasetCmd)
	cmdSet.Document(`train and run a byte-pair-encoding tokenizer over bzip2-compressed corpora. The encode input file may be local, on S3 or a URL; corpus files for train and encode-dataset are read from the local filesystem.`)

	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

// countBar renders a simple count-based progress bar, used by the train
// command where progress is measured in merges rather than compressed
// bytes.
func countBar(w io.Writer, total int, label string) *progressbar.ProgressBar {
	if total <= 0 {
		return progressbar.NewOptions(-1, progressbar.OptionSetWriter(w), progressbar.OptionSetDescription(label))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(label),
		progressbar.OptionSetPredictTime(true))
}

// isNonInteractive reports whether progress bars should be suppressed in
// favour of plain logging: either stdout is not a terminal, or the
// environment signals that this process is one peer of a distributed
// training run, where an animated bar would corrupt aggregated logs.
func isNonInteractive() bool {
	if os.Getenv("BPEKIT_DISTRIBUTED") != "" {
		return true
	}
	return !terminal.IsTerminal(int(os.Stdout.Fd()))
}

func openFileOrURL(ctx context.Context, name string) (io.Reader, int64, func(context.Context) error, error) {
	if strings.HasPrefix(name, "http") {
		resp, err := http.Get(name)
		if err != nil {
			return nil, 0, nil, err
		}
		return resp.Body,
			resp.ContentLength,
			func(context.Context) error {
				resp.Body.Close()
				return nil
			},

			err
	}
	info, err := file.Stat(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	f, err := file.Open(ctx, name)
	if err != nil {
		return nil, 0, nil, err
	}
	return f.Reader(ctx), info.Size(), f.Close, nil
}

func createFile(ctx context.Context, name string) (io.Writer, func(context.Context) error, error) {
	if len(name) == 0 {
		return os.Stdout,
			func(context.Context) error {
				return nil
			},
			nil
	}
	f, err := file.Create(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	return f.Writer(ctx), f.Close, nil
}

func main() {
	cmdSet.MustDispatch(context.Background())
}
