package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
)

// process is a running capture command whose stdout carries media.
type process struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	cancel context.CancelFunc

	stopOnce sync.Once
}

func startProcess(ctx context.Context, logger *slog.Logger, path string, args ...string) (*process, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, path, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	cmd.Stderr = &logWriter{logger: logger, cmd: path}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start %s: %w", path, err)
	}
	return &process{cmd: cmd, stdout: stdout, cancel: cancel}, nil
}

// stop kills the process and reaps it. Pending reads on stdout fail.
func (p *process) stop() {
	p.stopOnce.Do(func() {
		p.cancel()
		_ = p.cmd.Wait()
	})
}

// logWriter logs a child's stderr line by line at debug level.
type logWriter struct {
	logger *slog.Logger
	cmd    string

	mu      sync.Mutex
	partial []byte
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(string(w.partial[:i])); line != "" {
			w.logger.Debug("child output", "cmd", w.cmd, "line", line)
		}
		w.partial = w.partial[i+1:]
	}
	return len(p), nil
}
