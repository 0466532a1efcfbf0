package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/kozaktomas/identity-matcher/internal/imaging"
)

// outputJSON writes data to stdout as indented JSON
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

// newProgressBar returns the bar used by every long-running command
func newProgressBar(total int64, description, its string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString(its),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// collectImageFiles expands the given paths into image files. Directories
// contribute their image files, recursively when asked; plain files are taken
// as given.
func collectImageFiles(paths []string, recursive bool) ([]string, error) {
	var filePaths []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", path, err)
		}
		if !info.IsDir() {
			filePaths = append(filePaths, path)
			continue
		}

		if recursive {
			err := filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && imaging.HasImageExtension(d.Name()) {
					filePaths = append(filePaths, p)
				}
				return nil
			})
			if err != nil {
				return nil, fmt.Errorf("cannot walk folder %s: %w", path, err)
			}
			continue
		}

		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, fmt.Errorf("cannot read folder %s: %w", path, err)
		}
		for _, entry := range entries {
			if !entry.IsDir() && imaging.HasImageExtension(entry.Name()) {
				filePaths = append(filePaths, filepath.Join(path, entry.Name()))
			}
		}
	}
	return filePaths, nil
}

// formatDuration formats a duration in a human-readable way
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}
