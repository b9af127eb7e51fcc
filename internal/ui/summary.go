package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/engineercoding/dedupe/internal/atomic"
	"github.com/engineercoding/dedupe/internal/checksum"
	"github.com/engineercoding/dedupe/internal/deduplication"
	"github.com/engineercoding/dedupe/util"
)

var (
	headerColor = color.New(color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed, color.Bold)
)

// maxListed caps how many skipped paths are printed without --verbose.
const maxListed = 20

func separator() string {
	return strings.Repeat("─", 50)
}

// PrintSummary writes the outcome of a run or add.
func PrintSummary(w io.Writer, s *deduplication.Summary, verbose bool) {
	title := "Deduplication complete"
	if s.DryRun {
		title = "Dry run, nothing was changed"
	}
	headerColor.Fprintf(w, "\n%s\n", title)
	fmt.Fprintln(w, separator())

	fmt.Fprintf(w, "  Files scanned:    %d (%s)\n", s.FilesScanned, util.HumanReadableSize(s.BytesScanned))
	fmt.Fprintf(w, "  Duplicate groups: %d\n", s.Groups)
	if s.DryRun {
		fmt.Fprintf(w, "  Files to link:    %d\n", s.FilesLinked)
		okColor.Fprintf(w, "  Reclaimable:      %s\n", util.HumanReadableSize(s.BytesReclaimed))
	} else {
		fmt.Fprintf(w, "  Groups relocated: %d\n", s.GroupsRelocated)
		fmt.Fprintf(w, "  Files linked:     %d\n", s.FilesLinked)
		fmt.Fprintf(w, "  Objects created:  %d\n", s.ObjectsCreated)
		okColor.Fprintf(w, "  Reclaimed:        %s\n", util.HumanReadableSize(s.BytesReclaimed))
	}
	if s.IOLimit != "" {
		fmt.Fprintf(w, "  I/O limit:        %s/s\n", s.IOLimit)
	}
	fmt.Fprintf(w, "  Duration:         %s\n", s.Duration.Round(time.Millisecond))

	if r := s.Recovery; r != nil && (r.RolledForward > 0 || r.RolledBack > 0) {
		fmt.Fprintf(w, "  Recovered:        %d journal(s), %d link(s) completed\n", r.RolledBack, r.RolledForward)
	}

	if len(s.Skipped) == 0 {
		return
	}
	warnColor.Fprintf(w, "\n%d file(s) skipped:\n", len(s.Skipped))
	for i, skip := range s.Skipped {
		if !verbose && i == maxListed {
			fmt.Fprintf(w, "  ... and %d more (use --verbose to list all)\n", len(s.Skipped)-maxListed)
			break
		}
		path := skip.Path
		if path == "" {
			path = "<unknown>"
		}
		fmt.Fprintf(w, "  • %s: %s\n", path, skip.Reason())
	}
}

// PrintVerify writes the outcome of a store check.
func PrintVerify(w io.Writer, v *deduplication.VerifyResult) {
	headerColor.Fprintln(w, "\nStore verification")
	fmt.Fprintln(w, separator())
	fmt.Fprintf(w, "  Objects verified: %d (%s)\n", v.Objects, util.HumanReadableSize(v.Bytes))
	for _, c := range v.Corrupt {
		errColor.Fprintf(w, "  ✗ corrupt: %s\n", c.Path)
	}
	for _, u := range v.Unreadable {
		warnColor.Fprintf(w, "  ! unreadable: %s: %s\n", u.Path, u.Reason())
	}
	if v.OK() {
		okColor.Fprintln(w, "  ✓ all objects match their fingerprints")
	}
}

// PrintStats writes store statistics.
func PrintStats(w io.Writer, st *deduplication.Stats) {
	headerColor.Fprintln(w, "\nStore statistics")
	fmt.Fprintln(w, separator())
	fmt.Fprintf(w, "  Store:        %s\n", st.StoreRoot)
	fmt.Fprintf(w, "  Objects:      %d (%s)\n", st.Objects, util.HumanReadableSize(st.Bytes))
	for _, a := range st.Algorithms {
		fmt.Fprintf(w, "    %-10s %d (%s)\n", a.Algorithm, a.Objects, util.HumanReadableSize(a.Bytes))
	}
	fmt.Fprintf(w, "  Links:        %d\n", st.Links)
	fmt.Fprintf(w, "  Cached files: %d\n", st.CachedFiles)
	okColor.Fprintf(w, "  Space saved:  %s\n", util.HumanReadableSize(st.BytesSaved))
	if n := len(st.Unreferenced); n > 0 {
		warnColor.Fprintf(w, "\n  %d object(s) have no recorded link:\n", n)
		for _, p := range st.Unreferenced {
			fmt.Fprintf(w, "    %s\n", p)
		}
	}
	if st.Pending > 0 {
		warnColor.Fprintf(w, "\n  %d unfinished journal(s), run 'dedupe recover'\n", st.Pending)
	}
}

// PrintRecovery writes what recovery did.
func PrintRecovery(w io.Writer, r *atomic.RecoveryResult) {
	headerColor.Fprintln(w, "\nJournal recovery")
	fmt.Fprintln(w, separator())
	fmt.Fprintf(w, "  Journals settled: %d\n", r.RolledBack)
	fmt.Fprintf(w, "  Links completed:  %d\n", r.RolledForward)
	fmt.Fprintf(w, "  Journals purged:  %d\n", r.Purged)
	for _, p := range r.StrayTemp {
		warnColor.Fprintf(w, "  ! stray temporary file: %s\n", p)
	}
	for _, err := range r.Errors {
		errColor.Fprintf(w, "  ✗ %v\n", err)
	}
}

// PrintAlgorithms lists the supported fingerprint algorithms.
func PrintAlgorithms(w io.Writer) {
	for _, alg := range checksum.Algorithms() {
		marker := " "
		if alg == checksum.Default {
			marker = "*"
		}
		kind := "non-cryptographic"
		if alg.Cryptographic() {
			kind = "cryptographic"
		}
		fmt.Fprintf(w, "%s %-11s %-18s %s\n", marker, alg, kind, alg.Description())
	}
}
