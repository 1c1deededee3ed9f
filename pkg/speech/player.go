package speech

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/teslashibe/go-spotter/pkg/tts"
)

// DefaultPlayerCommand plays any container ffmpeg can probe from stdin.
const DefaultPlayerCommand = "ffplay -nodisp -autoexit -loglevel error -i -"

// Player renders synthesized audio. Play blocks until playback ends and
// must return promptly once ctx is cancelled.
type Player interface {
	Play(ctx context.Context, audio *tts.AudioResult) error
}

// ExecPlayer pipes audio into a local command (ffplay, aplay, gst-launch-1.0).
// The process is killed when the utterance is superseded.
type ExecPlayer struct {
	Program string
	Args    []string
}

// ParsePlayer splits a command line into an ExecPlayer.
// An empty line yields DefaultPlayerCommand; "none" yields a NopPlayer.
func ParsePlayer(line string, logger *slog.Logger) (Player, error) {
	line = strings.TrimSpace(line)
	switch line {
	case "":
		line = DefaultPlayerCommand
	case "none", "nop":
		return NopPlayer{Logger: logger}, nil
	}
	fields := strings.Fields(line)
	if _, err := exec.LookPath(fields[0]); err != nil {
		return nil, fmt.Errorf("player %s: %w", fields[0], err)
	}
	return &ExecPlayer{Program: fields[0], Args: fields[1:]}, nil
}

// Play runs the command with audio on stdin.
func (p *ExecPlayer) Play(ctx context.Context, audio *tts.AudioResult) error {
	if audio == nil || len(audio.Audio) == 0 {
		return nil
	}
	cmd := exec.CommandContext(ctx, p.Program, p.Args...)
	cmd.Stdin = bytes.NewReader(audio.Audio)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w: %s", p.Program, err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// NopPlayer logs instead of playing.
type NopPlayer struct {
	Logger *slog.Logger
}

// Play implements Player.
func (n NopPlayer) Play(ctx context.Context, audio *tts.AudioResult) error {
	if n.Logger != nil && audio != nil {
		n.Logger.Info("speech (no player)", "bytes", len(audio.Audio), "encoding", audio.Format.Encoding)
	}
	return ctx.Err()
}

var (
	_ Player = (*ExecPlayer)(nil)
	_ Player = NopPlayer{}
)
