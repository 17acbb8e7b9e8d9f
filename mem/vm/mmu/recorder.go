package mmu

import (
	"github.com/rs/xid"

	"github.com/neobench/neorom/datarecording"
	"github.com/neobench/neorom/sim"
)

// Tables created by the RecordingHook.
const (
	FaultTableName   = "mmu_fault"
	MappingTableName = "mmu_mapping"
)

// FaultRecord is one row of the fault table.
type FaultRecord struct {
	ID        string
	Component string
	VAddr     uint32
	IsWrite   bool
	Handled   bool
}

// MappingRecord is one row of the mapping table. Op is either "map" or
// "unmap".
type MappingRecord struct {
	ID         string
	Component  string
	Op         string
	VAddr      uint32
	PAddr      uint32
	Size       uint32
	Attributes string
}

// RecordingHook stores faults and mapping changes with a DataRecorder.
type RecordingHook struct {
	recorder datarecording.DataRecorder
}

// NewRecordingHook creates the tables and returns a hook that fills them.
func NewRecordingHook(recorder datarecording.DataRecorder) *RecordingHook {
	recorder.CreateTable(FaultTableName, FaultRecord{})
	recorder.CreateTable(MappingTableName, MappingRecord{})

	return &RecordingHook{recorder: recorder}
}

// Func inserts one row for the event.
func (h *RecordingHook) Func(ctx sim.HookCtx) {
	name := componentName(ctx.Domain)

	switch ctx.Pos {
	case HookPosFault:
		f := ctx.Item.(*FaultError)
		h.recorder.InsertData(FaultTableName, FaultRecord{
			ID:        xid.New().String(),
			Component: name,
			VAddr:     f.VAddr,
			IsWrite:   f.IsWrite,
			Handled:   f.Handled,
		})
	case HookPosMap, HookPosUnmap:
		m := ctx.Item.(MappingChange)
		op := "map"
		if ctx.Pos == HookPosUnmap {
			op = "unmap"
		}

		h.recorder.InsertData(MappingTableName, MappingRecord{
			ID:         xid.New().String(),
			Component:  name,
			Op:         op,
			VAddr:      m.VAddr,
			PAddr:      m.PAddr,
			Size:       m.Size,
			Attributes: m.Attributes.String(),
		})
	}
}
