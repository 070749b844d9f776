package cli

// This file contains the view command for displaying a run from the
// output directory.

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/SeldomQA/seldom-atx/history"
	"github.com/SeldomQA/seldom-atx/model"
	"github.com/urfave/cli/v2"
)

func removeFirstDashDash(in []string) []string {
	if len(in) > 0 && in[0] == "--" {
		return in[1:]
	}
	return in
}

func parseViewArgs(in []string) (idArg string, pprofArgs []string) {
	if len(in) == 0 {
		return "0", nil
	}

	// If first arg is "--", use default "0" and rest are pprof args
	if in[0] == "--" {
		return "0", in[1:]
	}

	// A negative index is "-" followed by digits only; anything else
	// starting with "-" is a pprof flag.
	if len(in[0]) > 1 && in[0][0] == '-' {
		if _, err := strconv.ParseInt(in[0], 10, 64); err != nil {
			return "0", in
		}
	}

	return in[0], removeFirstDashDash(in[1:])
}

// selectEntry picks an entry by index (0 is the newest, -1 the one before)
// or by ID prefix. entries are sorted newest first.
func selectEntry(entries []history.Entry, arg string) (*history.Entry, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("no runs found")
	}

	parsed, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return history.Find(entries, arg)
	}
	if parsed > 0 {
		return nil, fmt.Errorf("invalid index: %s (use 0 for last, -1 for second-to-last, etc.)", arg)
	}
	index := int(-parsed)
	if index >= len(entries) {
		return nil, fmt.Errorf("index %s out of range (only %d runs)", arg, len(entries))
	}
	return &entries[index], nil
}

func (a *App) view(ctx *cli.Context) error {
	arg, pprofArgs := parseViewArgs(ctx.Args().Slice())

	entries, err := history.LoadEntries(a.logger, a.cfg.OutputDir)
	if err != nil {
		return err
	}

	entry, err := selectEntry(entries, arg)
	if err != nil {
		return err
	}

	printEntry(os.Stdout, entry)

	if len(pprofArgs) > 0 {
		for _, artifact := range entry.History.Artifacts {
			if artifact.Type == model.ArtifactTypeProfile {
				return a.displayProfile(entry.FullPath, artifact, pprofArgs)
			}
		}
		return fmt.Errorf("run %s has no sample profile", entry.History.ID)
	}
	return nil
}

func printEntry(w io.Writer, entry *history.Entry) {
	h := entry.History

	shortID := h.ID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	fmt.Fprintf(w, "=== Run: %s ===\n", shortID)
	fmt.Fprintf(w, "Time: %s\n", h.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(w, "Duration: %s\n", h.Duration)
	fmt.Fprintf(w, "Case: %s\n", h.Case.Name)
	fmt.Fprintf(w, "Capabilities: %s\n", h.RunList)
	if h.Target != nil {
		fmt.Fprintf(w, "Target: %s %s %s\n", h.Target.Platform, h.Target.DeviceID, h.Target.Package)
	}
	if h.Record != nil {
		fmt.Fprintln(w)
		printRecord(w, h.Record)
	}

	if len(h.Repetitions) > 0 {
		fmt.Fprintln(w, "\nRepetitions:")
	}
	for _, rep := range h.Repetitions {
		fmt.Fprintf(w, "  #%d", rep.Index)
		if rep.DurationResolved {
			fmt.Fprintf(w, "  %.2fs (frames %d -> %d)", rep.Duration, rep.Start.Index, rep.Stop.Index)
		}
		fmt.Fprintln(w)
		for _, e := range rep.Errors {
			fmt.Fprintf(w, "     error: %s\n", e)
		}
	}

	if len(h.Artifacts) > 0 {
		fmt.Fprintln(w, "\nArtifacts:")
	}
	for _, artifact := range h.Artifacts {
		fmt.Fprintf(w, "  #%d %-9s %s (%.1f KB)\n", artifact.Repetition, artifact.Type, artifact.File, float64(artifact.Size)/1024)
	}
	fmt.Fprintf(w, "\nRun directory: %s\n", entry.FullPath)
}

func (a *App) displayProfile(runDir string, artifact model.Artifact, pprofArgs []string) error {
	profilePath := filepath.Join(runDir, artifact.File)
	fmt.Printf("Profile: %s (%.1f KB)\n", profilePath, float64(artifact.Size)/1024)

	args := []string{"tool", "pprof"}
	args = append(args, pprofArgs...)
	args = append(args, profilePath)

	cmd := exec.Command("go", args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = runDir

	return cmd.Run()
}
