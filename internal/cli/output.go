package cli

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/alnah/go-chunkscribe/internal/pipeline"
)

// deriveOutputPath converts a media file path to a markdown output path.
// Example: "meeting.m4a" -> "meeting.md"
func deriveOutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	return strings.TrimSuffix(inputPath, ext) + ".md"
}

// warnNonMarkdownExtension writes a warning to w if path has an extension
// that is not .md. This alerts users that the output will be Markdown
// regardless of the file extension they specified.
func warnNonMarkdownExtension(w io.Writer, path string) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != "" && ext != ".md" {
		_, _ = fmt.Fprintf(w, "Warning: output is Markdown regardless of %s extension\n", ext)
	}
}

// progressStep is the smallest advance, in percent, worth a progress line.
const progressStep = 10

// progressPrinter writes one line per stage start and per progressStep
// advance. Completion of a stage is always printed.
type progressPrinter struct {
	w    io.Writer
	mu   sync.Mutex
	last map[string]int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w, last: make(map[string]int)}
}

// Func returns the printer as a pipeline progress callback.
func (p *progressPrinter) Func() pipeline.ProgressFunc {
	return p.report
}

func (p *progressPrinter) report(stage string, fraction float64) {
	pct := int(math.Floor(fraction * 100))
	p.mu.Lock()
	defer p.mu.Unlock()

	last, seen := p.last[stage]
	switch {
	case !seen:
	case pct == 100 && last < 100:
	case pct-last >= progressStep:
	default:
		return
	}
	p.last[stage] = pct
	_, _ = fmt.Fprintf(p.w, "  %-10s %3d%%\n", stage, pct)
}

// writeFileAtomic writes content to path atomically.
// It fails if the file already exists (O_EXCL), preventing accidental overwrites.
// On write failure, the partial file is removed.
func writeFileAtomic(path, content string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("cannot create output directory: %w", err)
		}
	}

	// #nosec G302 G304 -- user-specified output file with standard permissions
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrOutputExists)
		}
		return fmt.Errorf("cannot create output file: %w", err)
	}

	writeErr := func() error {
		defer func() { _ = f.Close() }()
		if _, err := f.WriteString(content); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}()

	if writeErr != nil {
		_ = os.Remove(path)
		return writeErr
	}

	return nil
}
