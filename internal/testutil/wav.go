// Package testutil generates audio fixtures for package tests.
package testutil

import (
	"math"
	"os"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV writes a 16-bit PCM WAV file containing a 440 Hz tone and
// returns its size in bytes.
func WriteWAV(t testing.TB, path string, sampleRate, channels int, seconds float64) int64 {
	t.Helper()

	f, err := os.Create(path) // #nosec G304 -- test fixture path
	if err != nil {
		t.Fatalf("create wav fixture: %v", err)
	}

	frames := int(float64(sampleRate) * seconds)
	data := make([]int, frames*channels)
	for i := range frames {
		v := int(8000 * math.Sin(2*math.Pi*440*float64(i)/float64(sampleRate)))
		for c := range channels {
			data[i*channels+c] = v
		}
	}

	enc := wav.NewEncoder(f, sampleRate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: sampleRate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode wav fixture: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("finalize wav fixture: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close wav fixture: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat wav fixture: %v", err)
	}
	return info.Size()
}

// WriteBytes writes data to path or fails the test.
func WriteBytes(t testing.TB, path string, data []byte) {
	t.Helper()
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}
