// Package config loads the settings of the boot ROM from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultEnvFile is loaded when Load is called without files. It may be
// missing.
const DefaultEnvFile = ".env"

// Config holds the settings of one boot.
type Config struct {
	TLBEntries      int
	TablePoolBase   uint32
	TablePoolFrames int
	FramebufferPhys uint32
	FramebufferVirt uint32
	FramebufferSize uint32
	MonitorPort     int
	RecordPath      string
	OpenBrowser     bool

	// DemandPaging backs faulting pages with frames of the demand pool.
	DemandPaging     bool
	DemandPoolBase   uint32
	DemandPoolFrames int

	// TLBTracePath names a CSV file that receives one line per TLB hit,
	// TLB miss and fault. Empty disables tracing.
	TLBTracePath string
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		TLBEntries:      32,
		TablePoolBase:   0x00F00000,
		TablePoolFrames: 128,
		FramebufferPhys: 0x00200000,
		FramebufferVirt: 0x00E00000,
		FramebufferSize: 0x00080000,

		DemandPoolBase:   0x00400000,
		DemandPoolFrames: 256,
	}
}

// Load reads envFiles into the process environment and then builds a Config
// from the NEOROM_* variables. Variables that are already set win over the
// files. Without envFiles, DefaultEnvFile is read if it exists.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		err := godotenv.Load(DefaultEnvFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", DefaultEnvFile, err)
		}
	} else if err := godotenv.Load(envFiles...); err != nil {
		return Config{}, fmt.Errorf("load env files: %w", err)
	}

	return FromEnv()
}

// FromEnv builds a Config from the NEOROM_* variables of the process
// environment.
func FromEnv() (Config, error) {
	c := Default()

	fields := []struct {
		name  string
		parse func(string) error
	}{
		{"NEOROM_TLB_ENTRIES", intSetter(&c.TLBEntries)},
		{"NEOROM_TABLE_POOL_BASE", addrSetter(&c.TablePoolBase)},
		{"NEOROM_TABLE_POOL_FRAMES", intSetter(&c.TablePoolFrames)},
		{"NEOROM_FRAMEBUFFER_PHYS", addrSetter(&c.FramebufferPhys)},
		{"NEOROM_FRAMEBUFFER_VIRT", addrSetter(&c.FramebufferVirt)},
		{"NEOROM_FRAMEBUFFER_SIZE", addrSetter(&c.FramebufferSize)},
		{"NEOROM_MONITOR_PORT", intSetter(&c.MonitorPort)},
		{"NEOROM_RECORD", stringSetter(&c.RecordPath)},
		{"NEOROM_OPEN_BROWSER", boolSetter(&c.OpenBrowser)},
		{"NEOROM_DEMAND_PAGING", boolSetter(&c.DemandPaging)},
		{"NEOROM_DEMAND_POOL_BASE", addrSetter(&c.DemandPoolBase)},
		{"NEOROM_DEMAND_POOL_FRAMES", intSetter(&c.DemandPoolFrames)},
		{"NEOROM_TLB_TRACE", stringSetter(&c.TLBTracePath)},
	}

	for _, f := range fields {
		value, ok := os.LookupEnv(f.name)
		if !ok || value == "" {
			continue
		}

		if err := f.parse(value); err != nil {
			return Config{}, fmt.Errorf("%s=%q: %w", f.name, value, err)
		}
	}

	if err := c.Validate(); err != nil {
		return Config{}, err
	}

	return c, nil
}

// Validate reports settings that cannot produce a working MMU.
func (c Config) Validate() error {
	if c.TLBEntries <= 0 {
		return fmt.Errorf("TLB needs at least one entry, got %d", c.TLBEntries)
	}

	if c.TablePoolFrames <= 0 {
		return fmt.Errorf("table pool needs at least one frame, got %d",
			c.TablePoolFrames)
	}

	for name, addr := range map[string]uint32{
		"table pool base":      c.TablePoolBase,
		"framebuffer physical": c.FramebufferPhys,
		"framebuffer virtual":  c.FramebufferVirt,
		"demand pool base":     c.DemandPoolBase,
	} {
		if addr&0xFFF != 0 {
			return fmt.Errorf("%s 0x%08x is not page aligned", name, addr)
		}
	}

	poolEnd := uint64(c.TablePoolBase) + uint64(c.TablePoolFrames)*0x1000
	if poolEnd > 1<<32 {
		return fmt.Errorf(
			"table pool of %d frames at 0x%08x runs past the address space",
			c.TablePoolFrames, c.TablePoolBase)
	}

	if c.DemandPaging {
		if c.DemandPoolFrames <= 0 {
			return fmt.Errorf("demand pool needs at least one frame, got %d",
				c.DemandPoolFrames)
		}

		demandEnd := uint64(c.DemandPoolBase) + uint64(c.DemandPoolFrames)*0x1000
		if demandEnd > 1<<32 {
			return fmt.Errorf(
				"demand pool of %d frames at 0x%08x runs past the address space",
				c.DemandPoolFrames, c.DemandPoolBase)
		}
	}

	for name, addr := range map[string]uint32{
		"framebuffer physical": c.FramebufferPhys,
		"framebuffer virtual":  c.FramebufferVirt,
	} {
		if uint64(addr)+uint64(c.FramebufferSize) > 1<<32 {
			return fmt.Errorf(
				"%s range of 0x%x bytes at 0x%08x runs past the address space",
				name, c.FramebufferSize, addr)
		}
	}

	return nil
}

func intSetter(dst *int) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseInt(s, 0, 0)
		if err != nil {
			return err
		}

		*dst = int(v)

		return nil
	}
}

func addrSetter(dst *uint32) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return err
		}

		*dst = uint32(v)

		return nil
	}
}

func stringSetter(dst *string) func(string) error {
	return func(s string) error {
		*dst = s
		return nil
	}
}

func boolSetter(dst *bool) func(string) error {
	return func(s string) error {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return err
		}

		*dst = v

		return nil
	}
}
