package tts

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

const providerCommand = "command"

// TextPlaceholder in Command args is replaced by the text to speak.
// When no arg contains it, the text is written to the program's stdin.
const TextPlaceholder = "{text}"

// Command implements Provider by running a local synthesizer that writes
// audio to stdout, for example `espeak-ng --stdout {text}` or
// `piper --model en.onnx --output_file -`.
type Command struct {
	program string
	args    []string
	format  AudioFormat
	timeout time.Duration
	logger  *slog.Logger
}

// NewCommand creates a provider that runs program with args per utterance.
// Output is assumed to be WAV unless WithFormat says otherwise.
func NewCommand(program string, args []string, opts ...Option) (*Command, error) {
	if program == "" {
		return nil, ErrNoCommand
	}
	cfg := NewConfig(append([]Option{WithFormat(EncodingWAV)}, opts...)...)

	return &Command{
		program: program,
		args:    append([]string(nil), args...),
		format: AudioFormat{
			Encoding:   cfg.Format,
			SampleRate: SampleRateFromEncoding(cfg.Format),
			Channels:   1,
			BitDepth:   16,
		},
		timeout: cfg.Timeout,
		logger:  cfg.Logger.With("component", "tts.command"),
	}, nil
}

// ParseCommand splits a command line on whitespace into program and args.
func ParseCommand(line string, opts ...Option) (*Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil, ErrNoCommand
	}
	return NewCommand(fields[0], fields[1:], opts...)
}

// Synthesize runs the program and returns its stdout.
func (c *Command) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, WrapError(providerCommand, ErrEmptyText)
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	start := time.Now()

	args, substituted := c.expand(text)
	cmd := exec.CommandContext(ctx, c.program, args...)
	if !substituted {
		cmd.Stdin = strings.NewReader(text)
	}
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, WrapError(providerCommand, fmt.Errorf("%s: %w: %s", c.program, err, strings.TrimSpace(stderr.String())))
	}
	if stdout.Len() == 0 {
		return nil, WrapError(providerCommand, ErrNoAudio)
	}
	latency := time.Since(start).Milliseconds()

	c.logger.Debug("synthesized audio",
		"program", c.program,
		"chars", len(text),
		"bytes", stdout.Len(),
		"latency_ms", latency,
	)

	return &AudioResult{
		Audio:     stdout.Bytes(),
		Format:    c.format,
		CharCount: len(text),
		LatencyMs: latency,
	}, nil
}

// Health checks that the program can be found.
func (c *Command) Health(ctx context.Context) error {
	if _, err := exec.LookPath(c.program); err != nil {
		return WrapError(providerCommand, err)
	}
	return nil
}

// Close releases resources.
func (c *Command) Close() error {
	return nil
}

func (c *Command) expand(text string) ([]string, bool) {
	args := make([]string, len(c.args))
	substituted := false
	for i, a := range c.args {
		if strings.Contains(a, TextPlaceholder) {
			a = strings.ReplaceAll(a, TextPlaceholder, text)
			substituted = true
		}
		args[i] = a
	}
	return args, substituted
}

// Verify Command implements Provider at compile time.
var _ Provider = (*Command)(nil)
