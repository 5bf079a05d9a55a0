package media

import (
	"path/filepath"
	"strings"
)

// Container families. Formats in these families carry codec framing that
// cannot be cut at arbitrary byte offsets.
var containerExts = map[string]bool{
	// MPEG-4 family
	".m4a": true, ".m4b": true, ".mp4": true, ".mov": true, ".3gp": true,
	// WebM / Matroska
	".webm": true, ".mkv": true, ".mka": true,
	// Ogg family
	".ogg": true, ".oga": true, ".opus": true,
	// FLAC
	".flac": true,
}

// Simple formats tolerate byte-range splitting with light fixups.
var simpleExts = map[string]bool{
	".mp3": true, ".wav": true, ".mpga": true, ".mpeg": true,
}

var containerMIMEs = map[string]bool{
	"audio/mp4": true, "audio/x-m4a": true, "audio/m4a": true, "video/mp4": true,
	"video/quicktime": true, "video/3gpp": true, "audio/3gpp": true,
	"audio/webm": true, "video/webm": true, "video/x-matroska": true, "audio/x-matroska": true,
	"audio/ogg": true, "application/ogg": true, "audio/opus": true,
	"audio/flac": true, "audio/x-flac": true,
}

var videoExts = map[string]bool{
	".mp4": true, ".mov": true, ".mkv": true, ".webm": true, ".avi": true, ".m4v": true,
}

func ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

func baseMIME(mime string) string {
	mt, _, _ := strings.Cut(strings.ToLower(mime), ";")
	return strings.TrimSpace(mt)
}

// IsContainer reports whether the name or MIME type belongs to a container
// family. The extension is checked first and wins when recognized.
func IsContainer(name, mime string) bool {
	e := ext(name)
	if containerExts[e] {
		return true
	}
	if simpleExts[e] {
		return false
	}
	return containerMIMEs[baseMIME(mime)]
}

// IsVideo reports whether the name or MIME type suggests video content.
// The prober refines this with the actual stream list when available.
func IsVideo(name, mime string) bool {
	if videoExts[ext(name)] {
		return true
	}
	return strings.HasPrefix(baseMIME(mime), "video/")
}

// IsWAV reports a WAV file by extension or MIME.
func IsWAV(name, mime string) bool {
	if ext(name) == ".wav" {
		return true
	}
	switch baseMIME(mime) {
	case "audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave":
		return true
	}
	return false
}

// IsMP3 reports an MPEG audio file by extension or MIME.
func IsMP3(name, mime string) bool {
	switch ext(name) {
	case ".mp3", ".mpga", ".mpeg":
		return true
	}
	m := baseMIME(mime)
	return m == "audio/mpeg" || m == "audio/mp3"
}

// IsOgg reports an Ogg file by extension or MIME.
func IsOgg(name, mime string) bool {
	switch ext(name) {
	case ".ogg", ".oga":
		return true
	}
	m := baseMIME(mime)
	return m == "audio/ogg" || m == "application/ogg"
}
