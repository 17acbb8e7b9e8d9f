package mmu

import (
	"fmt"
	"io"
	"sync"

	"github.com/neobench/neorom/sim"
)

// A TLBTracer writes one CSV line for every TLB hit, TLB miss and fault.
// Columns are seq, component, what and the virtual address. Lines from
// concurrent translations never interleave and sequence numbers are unique.
type TLBTracer struct {
	sync.Mutex
	writer io.Writer
	seq    uint64
}

// NewTLBTracer produce a new TLBTracer, injecting the dependency of a writer.
func NewTLBTracer(w io.Writer) *TLBTracer {
	t := new(TLBTracer)
	t.writer = w

	return t
}

// Func prints the tlb trace information.
func (t *TLBTracer) Func(ctx sim.HookCtx) {
	var (
		what  string
		vAddr uint32
	)

	switch ctx.Pos {
	case HookPosTLBHit:
		what, vAddr = "hit", ctx.Item.(Access).VAddr
	case HookPosTLBMiss:
		what, vAddr = "miss", ctx.Item.(Access).VAddr
	case HookPosFault:
		what, vAddr = "fault", ctx.Item.(*FaultError).VAddr
	default:
		return
	}

	t.Lock()
	defer t.Unlock()

	_, err := fmt.Fprintf(t.writer,
		"%d,%s,%s,0x%08x\n",
		t.seq,
		componentName(ctx.Domain),
		what,
		vAddr)
	if err != nil {
		panic(err)
	}

	t.seq++
}
