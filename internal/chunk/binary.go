package chunk

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/alnah/go-chunkscribe/internal/media"
)

// mp3SyncWindow is how far before a hard cut the chunker looks for an MPEG
// frame sync to cut on instead.
const mp3SyncWindow = 4 * 1024

// BinaryChunker splits simple formats into byte ranges without touching
// the audio. Chunk times are unknown.
type BinaryChunker struct {
	log zerolog.Logger
}

// BinaryOption configures a BinaryChunker.
type BinaryOption func(*BinaryChunker)

// WithBinaryLogger sets the chunker logger.
func WithBinaryLogger(l zerolog.Logger) BinaryOption {
	return func(b *BinaryChunker) { b.log = l }
}

// NewBinaryChunker creates a BinaryChunker.
func NewBinaryChunker(opts ...BinaryOption) *BinaryChunker {
	b := &BinaryChunker{log: zerolog.Nop()}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Chunk returns ordered, non-overlapping byte ranges of src, each at most
// maxBytes including any synthesized header.
func (b *BinaryChunker) Chunk(src media.Source, maxBytes int64) ([]Chunk, error) {
	if media.IsContainer(src.Name, src.MIMEType) {
		return nil, fmt.Errorf("%w: %s", ErrContainerNotSplittable, src.Name)
	}
	if maxBytes <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidChunkSize, maxBytes)
	}

	f, err := os.Open(src.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src.Name, err)
	}
	defer func() { _ = f.Close() }()

	ext := strings.TrimPrefix(src.Ext(), ".")
	var chunks []Chunk
	switch {
	case media.IsWAV(src.Name, src.MIMEType):
		chunks, err = splitWAV(f, src, maxBytes)
	case media.IsMP3(src.Name, src.MIMEType):
		chunks, err = splitMP3(f, src.Size, maxBytes, ext)
	default:
		chunks = splitRaw(src.Size, maxBytes, func(off int64) int64 { return off })
		for i := range chunks {
			chunks[i].Format = ext
		}
	}
	if err != nil {
		return nil, err
	}

	for i := range chunks {
		chunks[i].Index = i
		chunks[i].Path = src.Path
		chunks[i].Timing = TimingUnknown
	}
	b.log.Debug().Str("file", src.Name).Int("chunks", len(chunks)).Int64("max_bytes", maxBytes).Msg("byte split")
	return chunks, nil
}

// splitRaw cuts [0,size) into ranges of at most maxBytes. adjust may move
// each tentative cut earlier; it must return a value in (start, cut].
func splitRaw(size, maxBytes int64, adjust func(cut int64) int64) []Chunk {
	var chunks []Chunk
	for start := int64(0); start < size; {
		end := start + maxBytes
		if end >= size {
			end = size
		} else if a := adjust(end); a > start && a <= end {
			end = a
		}
		chunks = append(chunks, Chunk{Offset: start, Length: end - start})
		start = end
	}
	return chunks
}

// splitWAV cuts the data chunk on block boundaries and gives every piece
// its own header.
func splitWAV(f io.ReaderAt, src media.Source, maxBytes int64) ([]Chunk, error) {
	layout, err := parseWAV(f, src.Size)
	if err != nil {
		return nil, err
	}
	block := int64(layout.BlockAlign)
	payload := (maxBytes - wavHeaderSize) / block * block
	if payload <= 0 {
		return nil, fmt.Errorf("%w: %d bytes cannot hold a WAV header and one block", ErrInvalidChunkSize, maxBytes)
	}

	var chunks []Chunk
	for off := int64(0); off < layout.DataSize; off += payload {
		n := min(payload, layout.DataSize-off)
		n -= n % block
		if n == 0 {
			break
		}
		chunks = append(chunks, Chunk{
			Offset: layout.DataOffset + off,
			Length: n,
			Header: layout.header(n),
			Format: "wav",
		})
	}
	return chunks, nil
}

// splitMP3 prefers cuts on frame sync words found in the last
// mp3SyncWindow bytes before each hard limit.
func splitMP3(f io.ReaderAt, size, maxBytes int64, ext string) ([]Chunk, error) {
	var readErr error
	adjust := func(cut int64) int64 {
		if maxBytes <= 2*mp3SyncWindow {
			return cut
		}
		from := cut - mp3SyncWindow
		buf := make([]byte, mp3SyncWindow+4)
		n, err := f.ReadAt(buf, from)
		if err != nil && err != io.EOF {
			readErr = err
			return cut
		}
		if i := firstFrameSync(buf[:n]); i >= 0 && from+int64(i) < cut {
			return from + int64(i)
		}
		return cut
	}

	chunks := splitRaw(size, maxBytes, adjust)
	if readErr != nil {
		return nil, fmt.Errorf("read mp3: %w", readErr)
	}
	for i := range chunks {
		chunks[i].Format = ext
	}
	return chunks, nil
}

// firstFrameSync returns the index of the first plausible MPEG audio frame
// header in buf, or -1.
func firstFrameSync(buf []byte) int {
	for i := 0; i+3 < len(buf); i++ {
		if buf[i] != 0xFF || buf[i+1]&0xE0 != 0xE0 {
			continue
		}
		version := (buf[i+1] >> 3) & 0x03
		layer := (buf[i+1] >> 1) & 0x03
		bitrate := buf[i+2] >> 4
		rate := (buf[i+2] >> 2) & 0x03
		if version == 0x01 || layer == 0x00 || bitrate == 0x0F || bitrate == 0x00 || rate == 0x03 {
			continue
		}
		return i
	}
	return -1
}
