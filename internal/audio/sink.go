// Package audio provides audio output sinks for the synthesizer and the
// PCM-to-WAV wrapping used by engines that produce raw samples.
package audio

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/speech-synthesizer/internal/config"
	"github.com/book-expert/speech-synthesizer/internal/core"
)

// File and directory permissions.
const (
	filePermissions = 0o600
	dirPermissions  = 0o750
)

// ErrSinkClosed is returned when writing to a closed sink.
var ErrSinkClosed = errors.New("audio sink is closed")

// DefaultFormat is the stream format assumed when no configuration is
// present: mono 16-bit PCM at 22.05 kHz.
func DefaultFormat() core.AudioFormat {
	return core.AudioFormat{
		SampleRate:    22050,
		Channels:      1,
		BitsPerSample: 16,
		Encoding:      "wav",
	}
}

// FormatFromProperties builds the stream format from the property bag,
// falling back to DefaultFormat values.
func FormatFromProperties(props core.Properties) core.AudioFormat {
	def := DefaultFormat()

	return core.AudioFormat{
		SampleRate:    props.GetInt(config.PropSampleRate, def.SampleRate),
		Channels:      props.GetInt(config.PropChannels, def.Channels),
		BitsPerSample: props.GetInt(config.PropBitsPerSample, def.BitsPerSample),
		Encoding:      def.Encoding,
	}
}

// BufferSink accumulates written audio in memory. Writes are synchronous,
// so WaitUntilDone only provides the drain barrier against a concurrent
// in-flight write.
type BufferSink struct {
	mu     sync.Mutex
	data   []byte
	format core.AudioFormat
	header bool
	closed bool
}

// NewBufferSink creates an in-memory sink for the given stream format.
func NewBufferSink(format core.AudioFormat, hasHeader bool) *BufferSink {
	return &BufferSink{
		mu:     sync.Mutex{},
		data:   nil,
		format: format,
		header: hasHeader,
		closed: false,
	}
}

// Write appends data to the buffer.
func (s *BufferSink) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSinkClosed
	}

	s.data = append(s.data, data...)

	return len(data), nil
}

// WaitUntilDone blocks until any in-flight write has landed.
func (s *BufferSink) WaitUntilDone() {
	s.mu.Lock()
	defer s.mu.Unlock()
}

// Close marks the sink closed; later writes fail with ErrSinkClosed.
func (s *BufferSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

// Bytes returns a copy of everything written so far.
func (s *BufferSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]byte, len(s.data))
	copy(out, s.data)

	return out
}

// GetFormat returns the stream format descriptor.
func (s *BufferSink) GetFormat() core.AudioFormat {
	return s.format
}

// HasHeader reports whether the stream carries its own container header.
func (s *BufferSink) HasHeader() bool {
	return s.header
}

// FileSink streams audio bytes to a file on disk.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	path   string
	format core.AudioFormat
	header bool
	closed bool
}

// NewFileSink creates the output file (and any missing parent directories)
// and returns a sink streaming into it.
func NewFileSink(path string, format core.AudioFormat, hasHeader bool) (*FileSink, error) {
	dirErr := os.MkdirAll(filepath.Dir(path), dirPermissions)
	if dirErr != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", dirErr)
	}

	file, openErr := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, filePermissions)
	if openErr != nil {
		return nil, fmt.Errorf("failed to create output file: %w", openErr)
	}

	return &FileSink{
		mu:     sync.Mutex{},
		file:   file,
		path:   path,
		format: format,
		header: hasHeader,
		closed: false,
	}, nil
}

// Write forwards data to the underlying file.
func (s *FileSink) Write(data []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSinkClosed
	}

	written, err := s.file.Write(data)
	if err != nil {
		return written, fmt.Errorf("failed to write audio file: %w", err)
	}

	return written, nil
}

// WaitUntilDone flushes buffered bytes to stable storage.
func (s *FileSink) WaitUntilDone() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}

	_ = s.file.Sync()
}

// Close closes the underlying file. Writing after Close fails.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true

	err := s.file.Close()
	if err != nil {
		return fmt.Errorf("failed to close audio file: %w", err)
	}

	return nil
}

// Path returns the output file path.
func (s *FileSink) Path() string {
	return s.path
}

// GetFormat returns the stream format descriptor.
func (s *FileSink) GetFormat() core.AudioFormat {
	return s.format
}

// HasHeader reports whether the stream carries its own container header.
func (s *FileSink) HasHeader() bool {
	return s.header
}

// NullSink discards everything written to it. Useful for headless service
// deployments where the terminal result already carries the audio payload.
type NullSink struct {
	format core.AudioFormat
	header bool
}

// NewNullSink creates a discarding sink for the given stream format.
func NewNullSink(format core.AudioFormat, hasHeader bool) *NullSink {
	return &NullSink{format: format, header: hasHeader}
}

// Write discards data and reports it fully accepted.
func (s *NullSink) Write(data []byte) (int, error) {
	return len(data), nil
}

// WaitUntilDone returns immediately.
func (s *NullSink) WaitUntilDone() {}

// Close is a no-op.
func (s *NullSink) Close() error {
	return nil
}

// GetFormat returns the stream format descriptor.
func (s *NullSink) GetFormat() core.AudioFormat {
	return s.format
}

// HasHeader reports whether the stream carries its own container header.
func (s *NullSink) HasHeader() bool {
	return s.header
}
