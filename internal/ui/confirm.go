package ui

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/manifoldco/promptui"
	"golang.org/x/term"

	"github.com/engineercoding/dedupe/util"
)

// IsTerminal reports whether r is an interactive terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Confirm asks a yes/no question. Terminals get a promptui prompt; other
// readers are answered line by line.
func Confirm(label string, in io.Reader, out io.Writer) (bool, error) {
	if !IsTerminal(in) {
		return util.Confirm(label, in, out)
	}

	prompt := promptui.Prompt{
		Label:     label,
		IsConfirm: true,
		Default:   "n",
	}
	if _, err := prompt.Run(); err != nil {
		if errors.Is(err, promptui.ErrAbort) {
			return false, nil
		}
		if errors.Is(err, promptui.ErrInterrupt) {
			return false, errors.New("operation cancelled")
		}
		return false, fmt.Errorf("prompt failed: %w", err)
	}
	return true, nil
}
