package run

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/bacalhau-project/shellwright/pkg/table"
	"github.com/briandowns/spinner"
)

// hostSpinner counts finished hosts while a multi-host run is in flight. The spinner
// library draws nothing when w is not a terminal.
type hostSpinner struct {
	*spinner.Spinner
	total int
	done  atomic.Int32
}

func newHostSpinner(w io.Writer, total int) *hostSpinner {
	s := spinner.New(spinner.CharSets[9], 100*time.Millisecond, spinner.WithWriter(w))
	hs := &hostSpinner{Spinner: s, total: total}
	s.Suffix = hs.suffix(0)
	return hs
}

func (hs *hostSpinner) suffix(done int) string {
	return fmt.Sprintf(" %d/%d hosts done", done, hs.total)
}

// HostDone is meant to be the runner's OnHostDone hook.
func (hs *hostSpinner) HostDone(table.HostResult) {
	n := int(hs.done.Add(1))
	hs.Lock()
	hs.Suffix = hs.suffix(n)
	hs.Unlock()
}

func (hs *hostSpinner) Done() int {
	return int(hs.done.Load())
}
