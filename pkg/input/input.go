// Package input turns raw scanner keystrokes into barcode submissions.
package input

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"time"
)

// Mode selects when buffered input is submitted.
type Mode string

const (
	// ModeEnter submits on every newline.
	ModeEnter Mode = "enter"
	// ModePause submits after a quiet period, or on newline.
	ModePause Mode = "pause"
)

// DefaultPause is the quiet period used by ModePause.
const DefaultPause = 300 * time.Millisecond

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeEnter, "":
		return ModeEnter, nil
	case ModePause:
		return ModePause, nil
	default:
		return "", fmt.Errorf("unknown submit mode %q", s)
	}
}

// Reader feeds submissions to a callback, one at a time, on the goroutine
// that called Run.
type Reader struct {
	Mode  Mode
	Pause time.Duration
}

// Run reads r until EOF or ctx is done. Submissions are passed to submit
// untrimmed; blank handling belongs to the ledger.
func (rd Reader) Run(ctx context.Context, r io.Reader, submit func(string)) error {
	if rd.Mode == ModePause {
		return rd.runPause(ctx, r, submit)
	}
	return runEnter(ctx, r, submit)
}

func runEnter(ctx context.Context, r io.Reader, submit func(string)) error {
	lines := make(chan string)
	errc := make(chan error, 1)

	go func() {
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line := <-lines:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			submit(line)
		case err := <-errc:
			return err
		}
	}
}

type chunk struct {
	data []byte
	err  error
}

func (rd Reader) runPause(ctx context.Context, r io.Reader, submit func(string)) error {
	pause := rd.Pause
	if pause <= 0 {
		pause = DefaultPause
	}

	chunks := make(chan chunk)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := r.Read(buf)
			data := append([]byte(nil), buf[:n]...)
			select {
			case chunks <- chunk{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	timer := time.NewTimer(pause)
	timer.Stop()
	var pending strings.Builder

	// flush is a no-op once ctx is done; submit may have cancelled it.
	flush := func() {
		if pending.Len() == 0 || ctx.Err() != nil {
			return
		}
		s := pending.String()
		pending.Reset()
		submit(s)
	}

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()

		case <-timer.C:
			flush()

		case c := <-chunks:
			for _, b := range c.data {
				if b == '\n' || b == '\r' {
					timer.Stop()
					flush()
					continue
				}
				pending.WriteByte(b)
			}
			if ctx.Err() != nil {
				timer.Stop()
				return ctx.Err()
			}
			if c.err != nil {
				timer.Stop()
				flush()
				if c.err == io.EOF {
					return nil
				}
				return c.err
			}
			if pending.Len() > 0 {
				timer.Reset(pause)
			}
		}
	}
}
