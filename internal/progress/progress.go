package progress

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

// Options configures progress bar behavior
type Options struct {
	Quiet   bool
	Verbose bool
	// Out receives verbose and info messages. Defaults to stdout.
	Out io.Writer
	// BarWriter receives the bar. Defaults to stderr; bars are only drawn
	// when it is a terminal.
	BarWriter io.Writer
}

// Manager handles progress bars and cancellation
type Manager struct {
	options    Options
	showBars   bool
	barMux     sync.Mutex
	totalBar   *progressbar.ProgressBar
	cancelFunc context.CancelFunc
	cancelled  bool
	cancelMux  sync.Mutex
	signalChan chan os.Signal
}

// NewManager creates a new progress manager
func NewManager(options Options) *Manager {
	if options.Out == nil {
		options.Out = os.Stdout
	}
	if options.BarWriter == nil {
		options.BarWriter = os.Stderr
	}
	return &Manager{
		options:    options,
		showBars:   !options.Quiet && isTerminal(options.BarWriter),
		signalChan: make(chan os.Signal, 1),
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// SetupCancellation sets up signal handling for cancellation
func (pm *Manager) SetupCancellation(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	pm.cancelFunc = cancel

	signal.Notify(pm.signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case <-pm.signalChan:
			pm.cancelMux.Lock()
			pm.cancelled = true
			pm.cancelMux.Unlock()
			// #nosec G104 - cancellation message is not critical for functionality
			fmt.Fprintln(os.Stderr, "\nCancelling, finishing the current step...")
			cancel()
		case <-ctx.Done():
			// Context already cancelled
		}
	}()

	return ctx
}

// IsCancelled checks if the operation was cancelled
func (pm *Manager) IsCancelled() bool {
	pm.cancelMux.Lock()
	defer pm.cancelMux.Unlock()
	return pm.cancelled
}

// Cleanup removes signal handlers
func (pm *Manager) Cleanup() {
	signal.Stop(pm.signalChan)
	if pm.cancelFunc != nil {
		pm.cancelFunc()
	}
}

// InitTotalProgress initializes the total progress bar
func (pm *Manager) InitTotalProgress(totalBytes int64, description string) {
	if !pm.showBars {
		return
	}

	pm.barMux.Lock()
	defer pm.barMux.Unlock()
	pm.totalBar = progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(pm.options.BarWriter),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(50),
		progressbar.OptionThrottle(65),
		progressbar.OptionShowCount(),
		progressbar.OptionOnCompletion(func() {
			// #nosec G104 - progress bar completion message is not critical
			fmt.Fprint(pm.options.BarWriter, "\n")
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
	)
}

// UpdateTotalProgress updates the total progress bar. Safe for concurrent use.
func (pm *Manager) UpdateTotalProgress(bytes int64) {
	pm.barMux.Lock()
	defer pm.barMux.Unlock()
	if pm.totalBar == nil {
		return
	}
	// #nosec G104 - progress bar errors are not critical for functionality
	pm.totalBar.Add64(bytes)
}

// FinishTotalProgress marks the total progress as complete
func (pm *Manager) FinishTotalProgress() {
	pm.barMux.Lock()
	defer pm.barMux.Unlock()
	if pm.totalBar == nil {
		return
	}
	// #nosec G104 - progress bar errors are not critical for functionality
	pm.totalBar.Finish()
	pm.totalBar = nil
}

// PrintVerbose prints verbose information if verbose mode is enabled
func (pm *Manager) PrintVerbose(format string, args ...interface{}) {
	if pm.options.Verbose && !pm.options.Quiet {
		pm.print(format, args...)
	}
}

// PrintInfo prints informational messages (unless quiet mode)
func (pm *Manager) PrintInfo(format string, args ...interface{}) {
	if !pm.options.Quiet {
		pm.print(format, args...)
	}
}

func (pm *Manager) print(format string, args ...interface{}) {
	pm.barMux.Lock()
	defer pm.barMux.Unlock()
	// Clear the progress bar before printing to avoid line breaks
	if pm.totalBar != nil {
		// #nosec G104 - progress bar clear is not critical for functionality
		pm.totalBar.Clear()
	}

	// #nosec G104 - output errors are not critical for functionality
	fmt.Fprintf(pm.options.Out, format, args...)
	// Ensure output ends with newline if not already present
	if len(format) == 0 || format[len(format)-1] != '\n' {
		fmt.Fprintln(pm.options.Out)
	}
}
