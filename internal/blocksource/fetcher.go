// Copyright (C) 2024 Creditor Corp. Group.
// See LICENSE for copying information.

package blocksource

import (
	"sync"

	"github.com/btcsuite/btcd/wire"
)

// valueRequest carries one outpoint lookup through the fetch pool.
type valueRequest struct {
	outpoint wire.OutPoint
	reply    chan valueResponse
}

// valueResponse is the result of one outpoint lookup.
type valueResponse struct {
	value uint64
	err   error
}

// ValueFetcher resolves outpoint values with a pool of parallel readers.
// Responses are received in request order, never correlated by key: the
// writer enqueues requests while scanning a block and drains the answers in
// the same order while applying it.
type ValueFetcher struct {
	source   Source
	requests chan valueRequest
	pending  chan chan valueResponse

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// queueDepth bounds how many lookups the writer may enqueue ahead of
// draining them; a block never carries more spent outpoints than this.
const queueDepth = 20_000

// NewValueFetcher starts limit readers over the source. The queue depth
// bounds how far the writer may run ahead, exerting backpressure.
func NewValueFetcher(source Source, limit int) *ValueFetcher {
	f := &ValueFetcher{
		source:   source,
		requests: make(chan valueRequest, queueDepth),
		pending:  make(chan chan valueResponse, queueDepth),
	}

	for i := 0; i < limit; i++ {
		f.wg.Add(1)
		go f.worker()
	}

	return f
}

// worker serves lookups until the request channel closes.
func (f *ValueFetcher) worker() {
	defer f.wg.Done()

	for request := range f.requests {
		value, err := OutputValue(f.source, request.outpoint)
		request.reply <- valueResponse{value: value, err: err}
	}
}

// Request enqueues an outpoint lookup.
func (f *ValueFetcher) Request(outpoint wire.OutPoint) {
	reply := make(chan valueResponse, 1)
	f.pending <- reply
	f.requests <- valueRequest{outpoint: outpoint, reply: reply}
}

// Recv blocks until the oldest outstanding request resolves.
func (f *ValueFetcher) Recv() (uint64, error) {
	reply := <-f.pending
	response := <-reply

	return response.value, response.err
}

// Close stops the pool. Outstanding requests finish first.
func (f *ValueFetcher) Close() {
	f.closeOnce.Do(func() {
		close(f.requests)
	})
	f.wg.Wait()
}

// fetchedBlock pairs a prefetched block with its height or the fetch error.
type fetchedBlock struct {
	height uint32
	block  *wire.MsgBlock
	err    error
}

// BlockFetcher reads consecutive blocks ahead of the writer into a bounded
// channel. The writer pulls blocks by height; requesting a height out of
// sequence, as after a rollback, restarts the stream there.
type BlockFetcher struct {
	source Source
	depth  int

	stream chan fetchedBlock
	cancel chan struct{}
	next   uint32
}

// NewBlockFetcher prepares a prefetcher reading depth blocks ahead.
func NewBlockFetcher(source Source, depth int) *BlockFetcher {
	return &BlockFetcher{source: source, depth: depth}
}

// Fetch returns the block at height, blocking on the prefetch stream.
func (f *BlockFetcher) Fetch(height uint32) (*wire.MsgBlock, error) {
	if f.stream == nil || f.next != height {
		f.restart(height)
	}

	fetched := <-f.stream
	if fetched.err != nil {
		// the stream ended; the next request probes the source again.
		f.stream = nil
		return nil, fetched.err
	}

	f.next = height + 1

	return fetched.block, nil
}

// Stop terminates the prefetch stream.
func (f *BlockFetcher) Stop() {
	if f.cancel != nil {
		close(f.cancel)
		f.cancel = nil
		f.stream = nil
	}
}

// restart abandons any running stream and begins prefetching at height.
func (f *BlockFetcher) restart(height uint32) {
	f.Stop()

	f.cancel = make(chan struct{})
	f.stream = make(chan fetchedBlock, f.depth)
	f.next = height

	go f.run(height, f.stream, f.cancel)
}

// run fetches blocks from height upwards until an error or cancellation.
func (f *BlockFetcher) run(height uint32, out chan<- fetchedBlock, cancel <-chan struct{}) {
	for h := height; ; h++ {
		hash, err := f.source.BlockHash(h)

		var block *wire.MsgBlock
		if err == nil {
			block, err = f.source.Block(hash)
		}

		select {
		case out <- fetchedBlock{height: h, block: block, err: err}:
		case <-cancel:
			return
		}

		if err != nil {
			return
		}
	}
}
