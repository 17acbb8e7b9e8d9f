// Package bootrom sets up the address space that the boot ROM runs in.
package bootrom

import (
	"errors"
	"fmt"
	"sort"

	"github.com/neobench/neorom/config"
	"github.com/neobench/neorom/mem/vm"
)

// Fixed parts of the memory map.
const (
	ChipRAMBase = 0x00000000
	ChipRAMSize = 0x00200000
	ROMBase     = 0x00F80000
	ROMSize     = 0x00080000
)

// ErrRegionOverlap is returned when two regions share virtual pages.
var ErrRegionOverlap = errors.New("regions overlap")

// A Region is a named range of the address space.
type Region struct {
	Name       string
	VAddr      uint32
	PAddr      uint32
	Size       uint32
	Attributes vm.Attributes
}

func (r Region) end() uint64 {
	return uint64(r.VAddr) + uint64(r.Size)
}

func (r Region) String() string {
	return fmt.Sprintf("%s 0x%08x-0x%08x -> 0x%08x %s",
		r.Name, r.VAddr, r.end()-1, r.PAddr, r.Attributes)
}

// DefaultMemoryMap returns the regions every boot installs, in installation
// order.
func DefaultMemoryMap(cfg config.Config) []Region {
	return []Region{
		{
			Name:       "chip-ram",
			VAddr:      ChipRAMBase,
			PAddr:      ChipRAMBase,
			Size:       ChipRAMSize,
			Attributes: vm.MakeAttributes(vm.CacheCopyBack, vm.ProtReadWrite),
		},
		{
			Name:       "rom",
			VAddr:      ROMBase,
			PAddr:      ROMBase,
			Size:       ROMSize,
			Attributes: vm.MakeAttributes(vm.CacheWriteThrough, vm.ProtReadOnly),
		},
		{
			Name:  "table-pool",
			VAddr: cfg.TablePoolBase,
			PAddr: cfg.TablePoolBase,
			Size:  uint32(cfg.TablePoolFrames) * vm.PageSize,
			Attributes: vm.MakeAttributes(
				vm.CacheNoCacheSerialize, vm.ProtSupervisor),
		},
		{
			Name:  "framebuffer",
			VAddr: cfg.FramebufferVirt,
			PAddr: cfg.FramebufferPhys,
			Size:  cfg.FramebufferSize,
			Attributes: vm.MakeAttributes(
				vm.CacheNoCacheSerialize, vm.ProtReadWrite),
		},
	}
}

// CheckOverlap reports the first pair of regions whose virtual ranges
// intersect. Empty regions are skipped.
func CheckOverlap(regions []Region) error {
	sorted := make([]Region, 0, len(regions))
	for _, r := range regions {
		if r.Size > 0 {
			sorted = append(sorted, r)
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].VAddr < sorted[j].VAddr
	})

	for i := 1; i < len(sorted); i++ {
		prev, cur := sorted[i-1], sorted[i]
		if uint64(cur.VAddr) < prev.end() {
			return fmt.Errorf("%s and %s: %w", prev.Name, cur.Name, ErrRegionOverlap)
		}
	}

	return nil
}

// A Controller is the MMU that Boot sets up.
type Controller interface {
	AddMapping(vAddr, pAddr, size uint32, attrs vm.Attributes) error
	Enable()
}

// Boot installs the regions in order and turns translation on. Empty regions
// are skipped. It stops at the first region that cannot be installed, leaving
// translation disabled.
func Boot(ctrl Controller, regions []Region) error {
	if err := CheckOverlap(regions); err != nil {
		return err
	}

	for _, r := range regions {
		if r.Size == 0 {
			continue
		}

		err := ctrl.AddMapping(r.VAddr, r.PAddr, r.Size, r.Attributes)
		if err != nil {
			return fmt.Errorf("region %s: %w", r.Name, err)
		}
	}

	ctrl.Enable()

	return nil
}
