package vm

import "errors"

// Errors reported by the translation table and the MMU.
var (
	// ErrInvalidAlignment is returned when an address passed to a mapping
	// operation is not a multiple of the page size.
	ErrInvalidAlignment = errors.New("address is not page aligned")

	// ErrInvalidSize is returned for empty ranges and ranges that run past the
	// end of the 32-bit address space.
	ErrInvalidSize = errors.New("invalid mapping size")

	// ErrOutOfMemory is returned when an intermediate table cannot be
	// allocated.
	ErrOutOfMemory = errors.New("out of memory for translation tables")

	// ErrMappingNotFound is returned when removing a page that is not mapped.
	ErrMappingNotFound = errors.New("mapping not found")

	// ErrTranslationFault is returned when a table walk finds no resident
	// leaf.
	ErrTranslationFault = errors.New("translation fault")

	// ErrPageFaultUnhandled is returned when the fault handler declined to
	// resolve a translation fault.
	ErrPageFaultUnhandled = errors.New("page fault not handled")
)
