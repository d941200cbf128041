package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WAVWriter streams mono PCM16 samples into a RIFF/WAVE container. The
// header is written with a zero length up front and patched by Finalize,
// so the destination must be seekable.
type WAVWriter struct {
	w          io.WriteSeeker
	sampleRate int
	dataBytes  uint32
}

func NewWAVWriter(w io.WriteSeeker, sampleRate int) (*WAVWriter, error) {
	ww := &WAVWriter{w: w, sampleRate: sampleRate}
	if err := ww.writeHeader(); err != nil {
		return nil, fmt.Errorf("failed to write wav header: %w", err)
	}
	return ww, nil
}

func (ww *WAVWriter) writeHeader() error {
	const (
		numChannels   = 1
		bitsPerSample = 16
	)
	byteRate := ww.sampleRate * numChannels * bitsPerSample / 8
	blockAlign := numChannels * bitsPerSample / 8

	var header [44]byte
	copy(header[0:], "RIFF")
	// chunk size patched in Finalize
	copy(header[8:], "WAVE")
	copy(header[12:], "fmt ")
	binary.LittleEndian.PutUint32(header[16:], 16)
	binary.LittleEndian.PutUint16(header[20:], 1) // PCM
	binary.LittleEndian.PutUint16(header[22:], numChannels)
	binary.LittleEndian.PutUint32(header[24:], uint32(ww.sampleRate))
	binary.LittleEndian.PutUint32(header[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(header[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(header[34:], bitsPerSample)
	copy(header[36:], "data")
	// data size patched in Finalize

	_, err := ww.w.Write(header[:])
	return err
}

func (ww *WAVWriter) WriteSamples(samples []float32) error {
	pcm := Float32ToPCM16(samples)
	n, err := ww.w.Write(pcm)
	ww.dataBytes += uint32(n)
	if err != nil {
		return fmt.Errorf("failed to write wav samples: %w", err)
	}
	return nil
}

// Finalize patches the RIFF and data chunk sizes. The writer must not be
// used afterwards.
func (ww *WAVWriter) Finalize() error {
	var size [4]byte

	if _, err := ww.w.Seek(4, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to riff size: %w", err)
	}
	binary.LittleEndian.PutUint32(size[:], 36+ww.dataBytes)
	if _, err := ww.w.Write(size[:]); err != nil {
		return fmt.Errorf("failed to patch riff size: %w", err)
	}

	if _, err := ww.w.Seek(40, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to data size: %w", err)
	}
	binary.LittleEndian.PutUint32(size[:], ww.dataBytes)
	if _, err := ww.w.Write(size[:]); err != nil {
		return fmt.Errorf("failed to patch data size: %w", err)
	}

	return nil
}
