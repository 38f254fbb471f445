// Copyright 2024 The bpekit-go Authors. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

package collective

import (
	"context"
	"fmt"
	"sync"
)

// LocalTransport connects Size() in-process peers with a channel-based
// rendezvous: the last peer to arrive at a round snapshots the buffers and
// closes a "round complete" channel, releasing every waiter at once. It
// backs every unit test in this module and single-process ("peers=1") CLI
// invocations; a real multi-process deployment supplies its own Transport
// over sockets or an RPC mesh.
type LocalTransport struct {
	rank  int
	group *localGroup
}

// NewLocalGroup returns size LocalTransports that rendezvous with each
// other; transport i must be driven only by the goroutine simulating peer i.
func NewLocalGroup(size int) []*LocalTransport {
	if size < 1 {
		panic("collective: group size must be >= 1")
	}
	g := &localGroup{size: size}
	out := make([]*LocalTransport, size)
	for i := range out {
		out[i] = &LocalTransport{rank: i, group: g}
	}
	return out
}

func (t *LocalTransport) Rank() int { return t.rank }
func (t *LocalTransport) Size() int { return t.group.size }

func (t *LocalTransport) AllGather(ctx context.Context, local []byte) ([][]byte, error) {
	return t.group.allGather(ctx, t.rank, local)
}

type localGroup struct {
	size int

	mu      sync.Mutex
	current *localRound
	arrived int
}

type localRound struct {
	bufs [][]byte
	done chan struct{}
}

// allGather collects one buffer from every rank for the current round, then
// releases all callers at once with the full, rank-ordered set of buffers.
// Once every rank has arrived, the group advances to a fresh round so the
// same Transport set can be reused across the training loop's repeated
// all_reduce calls.
func (g *localGroup) allGather(ctx context.Context, rank int, local []byte) ([][]byte, error) {
	g.mu.Lock()
	if rank < 0 || rank >= g.size {
		g.mu.Unlock()
		return nil, fmt.Errorf("collective: rank %d out of range [0,%d)", rank, g.size)
	}
	if g.current == nil {
		g.current = &localRound{bufs: make([][]byte, g.size), done: make(chan struct{})}
	}
	round := g.current
	round.bufs[rank] = local
	g.arrived++
	if g.arrived == g.size {
		g.arrived = 0
		g.current = nil
		close(round.done)
	}
	g.mu.Unlock()

	select {
	case <-round.done:
		return round.bufs, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
