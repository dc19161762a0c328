package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/aretw0/cadloop/internal/logging"
	"github.com/aretw0/cadloop/internal/presentation/tui"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce batches the burst of events an editor emits on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher re-runs a script every time it is saved.
type Watcher struct {
	Engine   Engine
	Options  RunOptions
	Out      io.Writer
	Render   func(string) (string, error)
	Logger   *slog.Logger
	Debounce time.Duration
	// OnRun, when set, observes the outcome of every run.
	OnRun func(tui.Summary, error)
}

// Run watches until ctx is done. The script runs once on start.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	script, err := filepath.Abs(w.Options.Script)
	if err != nil {
		return err
	}
	opts := w.Options
	opts.Script = script

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer fsw.Close()

	// Editors often replace the file on save, so watch the directory.
	if err := fsw.Add(filepath.Dir(script)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(script), err)
	}
	logger.Info("Starting Watcher", "script", script)

	w.runOnce(ctx, opts, logger)

	var timer *time.Timer
	var fire <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Stopping watcher")
			return nil

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != script {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			logger.Debug("Change detected", "op", event.Op.String())
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("Watcher error", "err", err)

		case <-fire:
			fire = nil
			printSystemMessage(w.Out, "Change detected in '%s'.", filepath.Base(script))
			w.runOnce(ctx, opts, logger)
		}
	}
}

func (w *Watcher) runOnce(ctx context.Context, opts RunOptions, logger *slog.Logger) {
	summary, err := Run(ctx, w.Engine, opts, w.Out, w.Render)
	switch {
	case err == nil:
		printSystemMessage(w.Out, "Waiting for changes...")
	case errors.Is(err, ErrExecutionFailed):
		printSystemMessage(w.Out, "Run failed; waiting for changes...")
	default:
		logger.Error("Run failed", "err", err)
		printSystemMessage(w.Out, "Error: %v", err)
	}
	if w.OnRun != nil {
		w.OnRun(summary, err)
	}
}
