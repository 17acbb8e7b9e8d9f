package mmu

import (
	"log"

	"github.com/neobench/neorom/sim"
)

// LogHook prints MMU events into a logger. TLB hits are not logged.
type LogHook struct {
	sim.LogHookBase
}

// NewLogHook returns a new LogHook that writes into logger.
func NewLogHook(logger *log.Logger) *LogHook {
	return &LogHook{LogHookBase: sim.NewLogHookBase(logger)}
}

// Func writes the event into the logger.
func (h *LogHook) Func(ctx sim.HookCtx) {
	name := componentName(ctx.Domain)

	switch ctx.Pos {
	case HookPosTLBMiss:
		a := ctx.Item.(Access)
		h.Printf("%s: tlb miss 0x%08x -> 0x%08x", name, a.VAddr, a.PAddr)
	case HookPosFault:
		h.Printf("%s: %s", name, ctx.Item.(*FaultError))
	case HookPosMap:
		m := ctx.Item.(MappingChange)
		h.Printf("%s: map 0x%08x -> 0x%08x, 0x%x bytes, %s",
			name, m.VAddr, m.PAddr, m.Size, m.Attributes)
	case HookPosUnmap:
		m := ctx.Item.(MappingChange)
		h.Printf("%s: unmap 0x%08x", name, m.VAddr)
	case HookPosEnable:
		h.Printf("%s: translation enabled", name)
	case HookPosDisable:
		h.Printf("%s: translation disabled", name)
	}
}

type named interface {
	Name() string
}

func componentName(domain sim.Hookable) string {
	if n, ok := domain.(named); ok {
		return n.Name()
	}

	return "unknown"
}
