// Package media describes input recordings and probes their duration and
// container class.
package media

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Source is an input recording. It is created once by Open and never
// mutated; WithDuration returns a copy.
type Source struct {
	Path     string
	Name     string
	Size     int64
	MIMEType string
	// Duration is in seconds. It is 0, NaN or +Inf when unknown.
	Duration float64
}

// Open stats path and builds a Source. When declaredMIME is empty the type
// is sniffed from the file content.
func Open(path, declaredMIME string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Source{}, fmt.Errorf("%w: %s", ErrFileNotFound, path)
		}
		return Source{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return Source{}, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	if info.Size() == 0 {
		return Source{}, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}

	mt := declaredMIME
	if mt == "" {
		if m, err := mimetype.DetectFile(path); err == nil {
			mt = m.String()
		}
	}
	mt, _, _ = strings.Cut(mt, ";")

	return Source{
		Path:     path,
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: strings.TrimSpace(mt),
		Duration: math.NaN(),
	}, nil
}

// WithDuration returns a copy of s with the given duration in seconds.
func (s Source) WithDuration(seconds float64) Source {
	s.Duration = seconds
	return s
}

// Ext returns the lower-cased file extension including the dot.
func (s Source) Ext() string {
	return strings.ToLower(filepath.Ext(s.Name))
}

// KnownDuration reports whether d is a usable, positive duration.
func KnownDuration(d float64) bool {
	return d > 0 && !math.IsNaN(d) && !math.IsInf(d, 0)
}
