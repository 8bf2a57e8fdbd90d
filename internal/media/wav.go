package media

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteWAV writes the PCM chunks as a single-channel 16-bit little-endian
// 16 kHz RIFF/WAVE stream: the fixed 44-byte header followed by the chunks in
// order.
func WriteWAV(w io.Writer, chunks [][]byte) error {
	var dataLen int
	for _, c := range chunks {
		dataLen += len(c)
	}

	header := make([]byte, 44)
	copy(header[0:4], "RIFF")
	binary.LittleEndian.PutUint32(header[4:8], uint32(36+dataLen))
	copy(header[8:12], "WAVE")
	copy(header[12:16], "fmt ")
	binary.LittleEndian.PutUint32(header[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(header[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(header[22:24], Channels)
	binary.LittleEndian.PutUint32(header[24:28], SampleRate)
	binary.LittleEndian.PutUint32(header[28:32], SampleRate*Channels*bytesPerSample)
	binary.LittleEndian.PutUint16(header[32:34], Channels*bytesPerSample)
	binary.LittleEndian.PutUint16(header[34:36], BitsPerSample)
	copy(header[36:40], "data")
	binary.LittleEndian.PutUint32(header[40:44], uint32(dataLen))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("media: write WAV header: %w", err)
	}
	for _, c := range chunks {
		if _, err := w.Write(c); err != nil {
			return fmt.Errorf("media: write WAV data: %w", err)
		}
	}
	return nil
}
