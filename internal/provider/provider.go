// Package provider defines the remote speech-to-text services chunkscribe can
// dispatch to, as a validated value type.
package provider

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Provider names accepted on the command line and in config.
const (
	NameGemini = "gemini"
	NameGroq   = "groq"
	NameOpenAI = "openai"
)

// ErrInvalidProvider indicates an unrecognized provider name.
var ErrInvalidProvider = errors.New("invalid provider")

// Provider is a validated transcription provider.
// The zero value is unset; call OrDefault before use.
type Provider struct {
	name string
}

var _ fmt.Stringer = Provider{}

// Pre-parsed providers.
var (
	Gemini = Provider{name: NameGemini}
	Groq   = Provider{name: NameGroq}
	OpenAI = Provider{name: NameOpenAI}
)

// Default is used when neither flag nor config names a provider.
var Default = OpenAI

var known = map[string]Provider{
	NameGemini: Gemini,
	NameGroq:   Groq,
	NameOpenAI: OpenAI,
}

// apiKeyEnv maps a provider to the environment variable holding its key.
var apiKeyEnv = map[string]string{
	NameGemini: "GEMINI_API_KEY",
	NameGroq:   "GROQ_API_KEY",
	NameOpenAI: "OPENAI_API_KEY",
}

// Parse validates a provider name. Matching is case-sensitive.
func Parse(s string) (Provider, error) {
	if s == "" {
		return Provider{}, fmt.Errorf("provider cannot be empty: %w", ErrInvalidProvider)
	}
	p, ok := known[s]
	if !ok {
		return Provider{}, fmt.Errorf("unknown provider %q (use %s): %w",
			s, strings.Join(Names(), ", "), ErrInvalidProvider)
	}
	return p, nil
}

// MustParse is Parse that panics. For constants and tests only.
func MustParse(s string) Provider {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

// Names returns all valid provider names, sorted.
func Names() []string {
	names := make([]string, 0, len(known))
	for n := range known {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// String returns the provider name, or "" for the zero value.
func (p Provider) String() string { return p.name }

// IsZero reports whether the provider is unset.
func (p Provider) IsZero() bool { return p.name == "" }

// OrDefault returns p, or Default when p is unset.
func (p Provider) OrDefault() Provider {
	if p.IsZero() {
		return Default
	}
	return p
}

// APIKeyEnv returns the environment variable name holding the API key.
func (p Provider) APIKeyEnv() string {
	return apiKeyEnv[p.name]
}
