package chunk

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// wavHeaderSize is the size of a canonical PCM header.
const wavHeaderSize = 44

// wavHeader is the canonical 44-byte RIFF/WAVE header.
type wavHeader struct {
	ChunkID       [4]byte // "RIFF"
	ChunkSize     uint32  // file size - 8
	Format        [4]byte // "WAVE"
	Subchunk1ID   [4]byte // "fmt "
	Subchunk1Size uint32  // 16
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte // "data"
	Subchunk2Size uint32
}

// wavLayout is what the binary chunker needs from a WAV file.
type wavLayout struct {
	AudioFormat   uint16
	Channels      uint16
	SampleRate    uint32
	BitsPerSample uint16
	BlockAlign    uint16
	DataOffset    int64
	DataSize      int64
}

// extensibleFormat marks WAVE_FORMAT_EXTENSIBLE; the real codec is in the
// first two bytes of the sub-format GUID.
const extensibleFormat = 0xFFFE

// parseWAV walks the RIFF chunk list to find "fmt " and "data".
func parseWAV(r io.ReaderAt, size int64) (wavLayout, error) {
	var riff [12]byte
	if _, err := r.ReadAt(riff[:], 0); err != nil {
		return wavLayout{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return wavLayout{}, fmt.Errorf("%w: missing RIFF/WAVE tags", ErrInvalidWAV)
	}

	var (
		layout  wavLayout
		haveFmt bool
		pos     int64 = 12
	)
	for pos+8 <= size {
		var hdr [8]byte
		if _, err := r.ReadAt(hdr[:], pos); err != nil {
			return wavLayout{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
		}
		id := string(hdr[0:4])
		n := int64(binary.LittleEndian.Uint32(hdr[4:8]))
		body := pos + 8

		switch id {
		case "fmt ":
			if n < 16 {
				return wavLayout{}, fmt.Errorf("%w: fmt chunk too short", ErrInvalidWAV)
			}
			buf := make([]byte, min(n, 40))
			if _, err := r.ReadAt(buf, body); err != nil {
				return wavLayout{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
			}
			layout.AudioFormat = binary.LittleEndian.Uint16(buf[0:2])
			layout.Channels = binary.LittleEndian.Uint16(buf[2:4])
			layout.SampleRate = binary.LittleEndian.Uint32(buf[4:8])
			layout.BlockAlign = binary.LittleEndian.Uint16(buf[12:14])
			layout.BitsPerSample = binary.LittleEndian.Uint16(buf[14:16])
			if layout.AudioFormat == extensibleFormat && len(buf) >= 26 {
				layout.AudioFormat = binary.LittleEndian.Uint16(buf[24:26])
			}
			haveFmt = true
		case "data":
			if !haveFmt {
				return wavLayout{}, fmt.Errorf("%w: data before fmt", ErrInvalidWAV)
			}
			layout.DataOffset = body
			// Streamed WAVs carry 0 or 0xFFFFFFFF here; trust the file size.
			layout.DataSize = min(n, size-body)
			if n == 0 || n == 0xFFFFFFFF {
				layout.DataSize = size - body
			}
			if layout.BlockAlign == 0 {
				return wavLayout{}, fmt.Errorf("%w: zero block align", ErrInvalidWAV)
			}
			return layout, nil
		}
		pos = body + n + n%2 // chunks are word aligned
	}
	return wavLayout{}, fmt.Errorf("%w: no data chunk", ErrInvalidWAV)
}

// header synthesizes a 44-byte header for dataLen bytes of payload.
func (l wavLayout) header(dataLen int64) []byte {
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     uint32(36 + dataLen),
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   l.AudioFormat,
		NumChannels:   l.Channels,
		SampleRate:    l.SampleRate,
		ByteRate:      l.SampleRate * uint32(l.BlockAlign),
		BlockAlign:    l.BlockAlign,
		BitsPerSample: l.BitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: uint32(dataLen),
	}
	buf := bytes.NewBuffer(make([]byte, 0, wavHeaderSize))
	_ = binary.Write(buf, binary.LittleEndian, h) // bytes.Buffer writes cannot fail
	return buf.Bytes()
}
