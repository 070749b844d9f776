package history

// This file contains the per invocation manifest: saving it next to the
// artifacts of a run and loading it back for the list and view commands.

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/SeldomQA/seldom-atx/model"
	"github.com/rs/zerolog"
)

// ManifestFile is the name of the manifest inside a run directory.
const ManifestFile = "run.json"

// ErrNoRuns is returned when the output directory holds no manifests.
var ErrNoRuns = errors.New("no runs found")

type Entry struct {
	History  model.History
	FullPath string
}

// Save writes h as the manifest of dir.
func Save(dir string, h *model.History) error {
	data, err := json.MarshalIndent(h, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

// Register records the file or directory at path as an artifact of h.
// Paths are stored relative to runDir. Missing paths are skipped.
func Register(logger zerolog.Logger, runDir string, h *model.History, typ model.ArtifactType, repetition int, path string) {
	size, err := diskSize(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to stat artifact")
		}
		return
	}

	rel, err := filepath.Rel(runDir, path)
	if err != nil {
		rel = path
	}
	h.Artifacts = append(h.Artifacts, model.Artifact{
		Type:       typ,
		Repetition: repetition,
		Size:       size,
		File:       rel,
	})
	logger.Debug().Str("type", typ.String()).Str("file", rel).Msg("Registered artifact")
}

// diskSize returns the size of a file, or the summed size of the files
// below a directory.
func diskSize(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	if !info.IsDir() {
		return uint64(info.Size()), nil
	}

	var total uint64
	err = filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		total += uint64(fi.Size())
		return nil
	})
	return total, err
}

// LoadEntries loads all manifests below root, newest first.
func LoadEntries(logger zerolog.Logger, root string) ([]Entry, error) {
	if _, err := os.Stat(root); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoRuns, root)
	}

	var entries []Entry
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}

		manifestPath := filepath.Join(path, ManifestFile)
		if _, err := os.Stat(manifestPath); err != nil {
			return nil
		}
		h, err := Load(manifestPath)
		if err != nil {
			logger.Warn().Err(err).Str("path", manifestPath).Msg("Failed to parse manifest")
			return nil
		}
		entries = append(entries, Entry{History: h, FullPath: path})
		return filepath.SkipDir
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk output directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].History.Timestamp.After(entries[j].History.Timestamp)
	})
	return entries, nil
}

// Load parses a manifest file.
func Load(path string) (model.History, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return model.History{}, err
	}

	var h model.History
	if err := json.Unmarshal(data, &h); err != nil {
		return model.History{}, err
	}
	return h, nil
}

// Find returns the entry whose ID starts with prefix.
func Find(entries []Entry, prefix string) (*Entry, error) {
	var found *Entry
	for i := range entries {
		if !strings.HasPrefix(entries[i].History.ID, prefix) {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("ambiguous run ID prefix: %s", prefix)
		}
		found = &entries[i]
	}
	if found == nil {
		return nil, fmt.Errorf("%w with ID: %s", ErrNoRuns, prefix)
	}
	return found, nil
}
