package notify

import (
	"context"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/lafamilia/og-scanner/pkg/ledger"
	"github.com/lafamilia/og-scanner/pkg/logger"
)

// DefaultPlayers are tried in order when no player command is configured.
var DefaultPlayers = []string{"paplay", "aplay", "afplay"}

// SoundAlert plays a sound file when a duplicate is scanned. Every failure
// is swallowed: a missing file or player only costs the audible cue.
type SoundAlert struct {
	path   string
	player []string
	bell   io.Writer

	lookPath func(string) (string, error)
	start    func(name string, args ...string) error
}

// NewSoundAlert creates an alert for the WAV file at path. player is an
// optional command line (e.g. "mpv --no-video"); the file path is appended
// to it. bell, if non-nil, receives a terminal bell when no player exists.
func NewSoundAlert(path, player string, bell io.Writer) *SoundAlert {
	return &SoundAlert{
		path:     path,
		player:   strings.Fields(player),
		bell:     bell,
		lookPath: exec.LookPath,
		start:    startDetached,
	}
}

func (a *SoundAlert) ObserveScan(_ context.Context, res ledger.Result) {
	if res.Outcome != ledger.OutcomeDuplicate {
		return
	}
	if a.path == "" {
		return
	}
	if _, err := os.Stat(a.path); err != nil {
		return
	}

	name, args := a.resolvePlayer()
	if name == "" {
		if a.bell != nil {
			_, _ = io.WriteString(a.bell, "\a")
		}
		return
	}

	if err := a.start(name, append(args, a.path)...); err != nil {
		logger.Log.Debugw("alert sound not played", "player", name, "error", err)
	}
}

func (a *SoundAlert) resolvePlayer() (string, []string) {
	if len(a.player) > 0 {
		return a.player[0], a.player[1:]
	}
	for _, candidate := range DefaultPlayers {
		if p, err := a.lookPath(candidate); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// startDetached runs the player without waiting for playback to finish.
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}
