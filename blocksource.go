// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bpekit

// BlockSource is a lazy, unordered source of UTF-8 byte-string blocks. Next
// returns ok=false once the source is exhausted. corpus.NewBzip2Source is
// this module's default implementation, reading newline-delimited blocks
// out of bzip2-compressed corpus files.
type BlockSource interface {
	Next() (block []byte, ok bool, err error)
}

// SliceSource adapts an in-memory slice of blocks to BlockSource, primarily
// useful for tests and small corpora that already fit in memory.
type SliceSource struct {
	blocks [][]byte
	pos    int
}

// NewSliceSource returns a BlockSource that yields blocks in order.
func NewSliceSource(blocks [][]byte) *SliceSource {
	return &SliceSource{blocks: blocks}
}

func (s *SliceSource) Next() ([]byte, bool, error) {
	if s.pos >= len(s.blocks) {
		return nil, false, nil
	}
	b := s.blocks[s.pos]
	s.pos++
	return b, true, nil
}
