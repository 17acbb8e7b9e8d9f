package monitoring

import (
	"errors"
	"sync"
	"time"

	"github.com/neobench/neorom/mem/vm"
)

// A ProgressBar tracks the replay of an access trace. Every access is started,
// then finished with the error its translation returned.
type ProgressBar struct {
	sync.Mutex
	ID        string
	Name      string
	StartTime time.Time
	Total     uint64

	inProgress     uint64
	translated     uint64
	faultsHandled  uint64
	faultsDeclined uint64
}

// ProgressStatus is a consistent snapshot of a ProgressBar.
type ProgressStatus struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`

	// Translated counts accesses that resolved to a physical address.
	Translated uint64 `json:"translated"`

	// FaultsHandled and FaultsDeclined split the faulted accesses by the
	// answer of the fault handler.
	FaultsHandled  uint64 `json:"faults_handled"`
	FaultsDeclined uint64 `json:"faults_declined"`
}

// StartAccess marks one access as being translated.
func (b *ProgressBar) StartAccess() {
	b.Lock()
	defer b.Unlock()

	b.inProgress++
}

// FinishAccess completes one started access. err is the error returned by
// the translation, nil when it succeeded.
func (b *ProgressBar) FinishAccess(err error) {
	b.Lock()
	defer b.Unlock()

	b.inProgress--

	switch {
	case err == nil:
		b.translated++
	case errors.Is(err, vm.ErrPageFaultUnhandled):
		b.faultsDeclined++
	default:
		b.faultsHandled++
	}
}

// Status returns the current counters of the bar.
func (b *ProgressBar) Status() ProgressStatus {
	b.Lock()
	defer b.Unlock()

	return ProgressStatus{
		ID:             b.ID,
		Name:           b.Name,
		StartTime:      b.StartTime,
		Total:          b.Total,
		Finished:       b.translated + b.faultsHandled + b.faultsDeclined,
		InProgress:     b.inProgress,
		Translated:     b.translated,
		FaultsHandled:  b.faultsHandled,
		FaultsDeclined: b.faultsDeclined,
	}
}
