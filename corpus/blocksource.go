// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package corpus adapts on-disk corpus files into the bpekit.BlockSource
// interface bpekit.Train reads from.
package corpus

import (
	"bufio"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
)

// Bzip2Source is a bpekit.BlockSource (satisfied structurally: Next()
// ([]byte, bool, error)) that reads one or more bzip2-compressed corpus
// files and splits the decompressed byte stream into newline-delimited
// blocks. This is the default "lazy source yielding UTF-8 byte strings"
// the training entry point expects, for corpora distributed as
// bzip2-compressed text (e.g. enwik8/enwik9-style dumps).
type Bzip2Source struct {
	ctx   context.Context
	paths []string

	pos     int
	current *bufio.Scanner
	closer  io.Closer
}

// NewBzip2Source returns a Bzip2Source reading paths in order.
func NewBzip2Source(ctx context.Context, paths []string) *Bzip2Source {
	return &Bzip2Source{ctx: ctx, paths: paths}
}

// Next returns the next newline-delimited block, opening subsequent files
// in paths as each is exhausted.
func (s *Bzip2Source) Next() ([]byte, bool, error) {
	for {
		select {
		case <-s.ctx.Done():
			return nil, false, s.ctx.Err()
		default:
		}
		if s.current == nil {
			if s.pos >= len(s.paths) {
				return nil, false, nil
			}
			f, err := os.Open(s.paths[s.pos])
			if err != nil {
				return nil, false, fmt.Errorf("corpus: open %s: %w", s.paths[s.pos], err)
			}
			s.pos++
			s.closer = f
			sc := bufio.NewScanner(bzip2.NewReader(f))
			sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
			s.current = sc
		}
		if s.current.Scan() {
			line := s.current.Bytes()
			out := make([]byte, len(line))
			copy(out, line)
			return out, true, nil
		}
		err := s.current.Err()
		s.closer.Close()
		s.current = nil
		s.closer = nil
		if err != nil {
			return nil, false, fmt.Errorf("corpus: reading block: %w", err)
		}
	}
}
