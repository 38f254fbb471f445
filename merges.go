// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package bpekit

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// mergeRecordSize is the on-disk size of one merge record: pair.A, pair.B,
// new_token, each a little-endian uint32.
const mergeRecordSize = 12

// SaveMerges persists a trained merge table as an ordered sequence of
// little-endian (a, b, new_token) records, one per merge, in training
// order, so a training run's output can be handed to a separate
// encoding run.
func SaveMerges(w io.Writer, table *MergeTable) error {
	bw := bufio.NewWriter(w)
	var buf [mergeRecordSize]byte
	for _, r := range table.Rules() {
		binary.LittleEndian.PutUint32(buf[0:4], r.Pair.A)
		binary.LittleEndian.PutUint32(buf[4:8], r.Pair.B)
		binary.LittleEndian.PutUint32(buf[8:12], r.NewToken)
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("bpekit: writing merge table: %w", err)
		}
	}
	return bw.Flush()
}

// LoadMerges reads a merge table previously written by SaveMerges.
func LoadMerges(r io.Reader) (*MergeTable, error) {
	br := bufio.NewReader(r)
	var rules []MergeRule
	var buf [mergeRecordSize]byte
	for {
		_, err := io.ReadFull(br, buf[:])
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("bpekit: reading merge table: %w", err)
		}
		rules = append(rules, MergeRule{
			Pair: Pair{
				A: binary.LittleEndian.Uint32(buf[0:4]),
				B: binary.LittleEndian.Uint32(buf[4:8]),
			},
			NewToken: binary.LittleEndian.Uint32(buf[8:12]),
		})
	}
	return NewMergeTable(rules)
}
