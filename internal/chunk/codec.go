package chunk

import "strings"

// copyExt returns the output extension for stream-copying codec, and false
// when the codec must be re-encoded. Opus and Vorbis are excluded because
// cutting them without re-encoding yields broken pre-skip and granule data.
func copyExt(codec string) (string, bool) {
	c := strings.ToLower(codec)
	switch {
	case c == "aac", c == "alac":
		return "m4a", true
	case c == "mp3":
		return "mp3", true
	case c == "flac":
		return "flac", true
	case strings.HasPrefix(c, "pcm_"):
		return "wav", true
	}
	return "", false
}
