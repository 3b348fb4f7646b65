package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/lafamilia/og-scanner/pkg/ledger"
)

// Console prints the outcome of each scan, the terminal counterpart of a
// "Scan Recorded" / "Duplicate Scan" dialog.
type Console struct {
	mu  sync.Mutex
	out io.Writer
}

func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) ObserveScan(_ context.Context, res ledger.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch res.Outcome {
	case ledger.OutcomeNew:
		fmt.Fprintln(c.out, "Scan Recorded: New code saved successfully.")
	case ledger.OutcomeDuplicate:
		fmt.Fprintf(c.out, "Duplicate Scan: This code was already scanned at %s\n", res.FirstSeenDisplay())
	}
}
