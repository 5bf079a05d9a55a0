// Package checkpoint persists job progress so an interrupted transcription
// resumes where it stopped when the same input is submitted again.
package checkpoint

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/alnah/go-chunkscribe/internal/chunk"
	"github.com/alnah/go-chunkscribe/internal/provider"
	"github.com/alnah/go-chunkscribe/internal/strategy"
	"github.com/alnah/go-chunkscribe/internal/transcribe"
)

// ErrCorrupt indicates a stored checkpoint could not be decoded.
var ErrCorrupt = errors.New("corrupt checkpoint")

// State is the resumable progress of one job.
type State struct {
	Key      string `json:"key"`
	JobID    string `json:"job_id"`
	Source   string `json:"source"`
	Provider string `json:"provider"`
	Plan     string `json:"plan"`
	// ChunkDir holds the prepared chunk files; Chunks is empty until
	// preparation finished.
	ChunkDir  string                `json:"chunk_dir,omitempty"`
	Chunks    []chunk.Chunk         `json:"chunks,omitempty"`
	Fragments []transcribe.Fragment `json:"fragments,omitempty"`
	UpdatedAt time.Time             `json:"updated_at"`
}

// Prepared reports whether the chunk manifest was recorded.
func (s *State) Prepared() bool {
	return len(s.Chunks) > 0
}

// Store loads and saves States by key. Implementations are safe for
// concurrent use.
type Store interface {
	// Load returns (nil, nil) when key has no checkpoint.
	Load(ctx context.Context, key string) (*State, error)
	Save(ctx context.Context, state *State) error
	Delete(ctx context.Context, key string) error
}

// Key identifies a job by the content of its input, the provider and the
// plan, so a changed file or a different plan never resumes stale work.
func Key(path string, p provider.Provider, plan strategy.Plan) (string, error) {
	f, err := os.Open(path) // #nosec G304 -- path is the user's input file
	if err != nil {
		return "", fmt.Errorf("hash input: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash input: %w", err)
	}
	fmt.Fprintf(h, "\x00%s\x00%s\x00%s\x00%g\x00%g\x00%d",
		p.OrDefault(), plan.Kind, plan.Profile, plan.ChunkMinutes, plan.OverlapSeconds, plan.MaxChunkBytes)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Journal records the progress of one job in a Store.
type Journal struct {
	mu    sync.Mutex
	store Store
	state State
	now   func() time.Time
}

// Open loads the checkpoint for base.Key, or starts a new one from base.
// The returned bool reports whether a previous run was found.
func Open(ctx context.Context, store Store, base State) (*Journal, bool, error) {
	j := &Journal{store: store, state: base, now: time.Now}
	prev, err := store.Load(ctx, base.Key)
	if err != nil {
		return nil, false, err
	}
	if prev == nil {
		return j, false, nil
	}
	j.state = *prev
	return j, true, nil
}

// State returns a copy of the current state.
func (j *Journal) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	s := j.state
	s.Chunks = append([]chunk.Chunk(nil), j.state.Chunks...)
	s.Fragments = append([]transcribe.Fragment(nil), j.state.Fragments...)
	return s
}

// Prepared records the chunk manifest and the plan kind that produced it.
// When the job is prepared again, a fragment is kept only if the plan kind
// is unchanged and its chunk covers the same span as before.
func (j *Journal) Prepared(ctx context.Context, plan strategy.Kind, dir string, chunks []chunk.Chunk) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	kept := j.state.Fragments[:0:0]
	if j.state.Plan == string(plan) {
		for _, f := range j.state.Fragments {
			if f.Index < len(chunks) && f.Index < len(j.state.Chunks) &&
				sameSpan(j.state.Chunks[f.Index], chunks[f.Index]) {
				kept = append(kept, f)
			}
		}
	}
	j.state.Plan = string(plan)
	j.state.ChunkDir = dir
	j.state.Chunks = append([]chunk.Chunk(nil), chunks...)
	j.state.Fragments = kept
	return j.saveLocked(ctx)
}

// sameSpan reports whether two chunks hold the same part of the input:
// the same window for timed chunks, the same byte range otherwise.
func sameSpan(a, b chunk.Chunk) bool {
	if a.Timing != b.Timing || a.StartTime != b.StartTime || a.EndTime != b.EndTime {
		return false
	}
	return a.Timing == chunk.TimingExact || (a.Offset == b.Offset && a.Length == b.Length)
}

// Fragment records a completed fragment. Recording the same index twice
// keeps the latest.
func (j *Journal) Fragment(ctx context.Context, f transcribe.Fragment) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	frags := j.state.Fragments[:0:0]
	for _, old := range j.state.Fragments {
		if old.Index != f.Index {
			frags = append(frags, old)
		}
	}
	frags = append(frags, f)
	sort.Slice(frags, func(a, b int) bool { return frags[a].Index < frags[b].Index })
	j.state.Fragments = frags
	return j.saveLocked(ctx)
}

// Finish deletes the checkpoint.
func (j *Journal) Finish(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.store.Delete(ctx, j.state.Key)
}

func (j *Journal) saveLocked(ctx context.Context) error {
	j.state.UpdatedAt = j.now().UTC()
	s := j.state
	return j.store.Save(ctx, &s)
}
