// Package verify implements the parallel script-verification pool: a
// fixed-size worker set that evaluates signature checks for the
// inputs of a transaction or the transactions of a block, short-
// circuiting once any one of them fails (spec §4.10).
package verify

import (
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/libcoin/libcoin-sub003/wire"
)

// SignatureVerifier is the external verify_signature primitive a task
// body calls (spec §4.10). It reports the reason for a failed
// verification as an error.
type SignatureVerifier func(output *wire.TxOut, txn *wire.Tx, inputIndex int, strictP2SH bool, hashType uint32) error

type task struct {
	output     *wire.TxOut
	txn        *wire.Tx
	inputIndex int
	strictP2SH bool
	hashType   uint32
}

// Pool runs script-verification tasks on a fixed set of workers sized
// to available hardware parallelism. A single writer lock guards
// failed/reason; workers take a reader lock to test failed and a
// writer lock only to record the first failure, matching spec
// §4.10's design note verbatim.
type Pool struct {
	verifySignature SignatureVerifier
	log             *zap.Logger

	tasks chan task
	wg    sync.WaitGroup

	mu     sync.RWMutex
	failed bool
	reason string

	closeOnce sync.Once
	done      chan struct{}
}

// NewPool returns a Pool with workers worker goroutines (0 selects
// runtime.NumCPU(), clamped to at least 1).
func NewPool(verifySignature SignatureVerifier, workers int, log *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers < 1 {
		workers = 1
	}
	p := &Pool{
		verifySignature: verifySignature,
		log:             log,
		tasks:           make(chan task, workers),
		done:            make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

func (p *Pool) worker() {
	for {
		select {
		case t, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(t)
			p.wg.Done()
		case <-p.done:
			return
		}
	}
}

func (p *Pool) run(t task) {
	p.mu.RLock()
	failed := p.failed
	p.mu.RUnlock()
	if failed {
		return
	}

	if err := p.verifySignature(t.output, t.txn, t.inputIndex, t.strictP2SH, t.hashType); err != nil {
		p.mu.Lock()
		if !p.failed {
			p.failed = true
			p.reason = fmt.Sprintf("tx %x input %d: %v", t.txn.Hash(), t.inputIndex, err)
		}
		p.mu.Unlock()
		p.log.Debug("verify: script verification failed",
			zap.Int("input", t.inputIndex), zap.Error(err))
	}
}

// Verify enqueues a task; if the pool has already failed, the task's
// body returns immediately without calling verify_signature again
// (spec §4.10).
func (p *Pool) Verify(output *wire.TxOut, txn *wire.Tx, inputIndex int, strictP2SH bool, hashType uint32) {
	p.wg.Add(1)
	p.tasks <- task{output: output, txn: txn, inputIndex: inputIndex, strictP2SH: strictP2SH, hashType: hashType}
}

// YieldSuccess waits for every enqueued task to complete and reports
// whether all of them succeeded. Ordering of task completion is
// unspecified (spec §4.10).
func (p *Pool) YieldSuccess() bool {
	p.wg.Wait()
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.failed
}

// Reason returns a human-readable description of the first failure,
// or the empty string on success.
func (p *Pool) Reason() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.reason
}

// Reset clears failed/reason, ready for the next verification phase.
// Callable only when no tasks are outstanding (spec §4.10); calling
// it while tasks are in flight races with their completion and is the
// caller's bug, not this pool's to guard against.
func (p *Pool) Reset() {
	p.mu.Lock()
	p.failed = false
	p.reason = ""
	p.mu.Unlock()
}

// Close stops all worker goroutines, called once at node shutdown.
func (p *Pool) Close() {
	p.closeOnce.Do(func() { close(p.done) })
}
