package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/neobench/neorom/mem/vm"
)

// An access is one line of a trace.
type access struct {
	vAddr   uint32
	isWrite bool
}

// A translator is the part of the MMU a trace is replayed against.
type translator interface {
	Translate(vAddr uint32, isWrite bool) (uint32, error)
}

// A progress tracker is told about every replayed access and how its
// translation ended.
type progressTracker interface {
	StartAccess()
	FinishAccess(err error)
}

// parseTrace reads accesses written as "r 0xADDR" or "w 0xADDR". Blank lines
// and lines starting with # are skipped.
func parseTrace(r io.Reader) ([]access, error) {
	var accesses []access

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++

		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		a, err := parseAccess(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		accesses = append(accesses, a)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return accesses, nil
}

func parseAccess(line string) (access, error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return access{}, fmt.Errorf("expected \"r|w ADDR\", got %q", line)
	}

	var a access
	switch strings.ToLower(fields[0]) {
	case "r":
	case "w":
		a.isWrite = true
	default:
		return access{}, fmt.Errorf("unknown access kind %q", fields[0])
	}

	addr, err := strconv.ParseUint(fields[1], 0, 32)
	if err != nil {
		return access{}, err
	}
	a.vAddr = uint32(addr)

	return a, nil
}

// replayTrace translates every access and writes one line per access to out.
// It returns the number of accesses that faulted.
func replayTrace(
	accesses []access,
	t translator,
	out io.Writer,
	progress progressTracker,
) int {
	numFaults := 0

	for _, a := range accesses {
		if progress != nil {
			progress.StartAccess()
		}

		kind := "r"
		if a.isWrite {
			kind = "w"
		}

		pAddr, err := t.Translate(a.vAddr, a.isWrite)
		switch {
		case err == nil:
			fmt.Fprintf(out, "%s 0x%08x -> 0x%08x\n", kind, a.vAddr, pAddr)
		case errors.Is(err, vm.ErrPageFaultUnhandled):
			numFaults++
			fmt.Fprintf(out, "%s 0x%08x %s\n",
				kind, a.vAddr, faultColor.Sprint("fault, not handled"))
		default:
			numFaults++
			fmt.Fprintf(out, "%s 0x%08x %s\n",
				kind, a.vAddr, faultColor.Sprint("fault, handled"))
		}

		if progress != nil {
			progress.FinishAccess(err)
		}
	}

	return numFaults
}
