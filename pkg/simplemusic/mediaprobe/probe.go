// Package mediaprobe derives playback duration from staged audio files.
package mediaprobe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"
)

// ErrUnsupportedFormat is returned for files whose extension has no decoder.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Prober reports the duration in seconds of the audio file at path.
type Prober interface {
	Duration(ctx context.Context, path string) (float64, error)
}

type decodeFunc func(f *os.File) (beep.StreamSeekCloser, beep.Format, error)

var decoders = map[string]decodeFunc{
	".mp3":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return mp3.Decode(f) },
	".wav":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return wav.Decode(f) },
	".flac": func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return flac.Decode(f) },
	".ogg":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
	".oga":  func(f *os.File) (beep.StreamSeekCloser, beep.Format, error) { return vorbis.Decode(f) },
}

// BeepProber decodes audio headers with gopxl/beep and computes the
// duration from the stream length and sample rate.
type BeepProber struct{}

// NewBeepProber creates a prober supporting mp3, wav, flac and ogg vorbis.
func NewBeepProber() *BeepProber {
	return &BeepProber{}
}

// Supported reports whether a decoder exists for the file's extension.
func Supported(path string) bool {
	_, ok := decoders[strings.ToLower(filepath.Ext(path))]
	return ok
}

func (p *BeepProber) Duration(ctx context.Context, path string) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	decode, ok := decoders[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open audio file: %w", err)
	}
	// The decoders close f through the returned streamer, but not on error.
	defer f.Close()

	streamer, format, err := decode(f)
	if err != nil {
		return 0, fmt.Errorf("failed to decode audio: %w", err)
	}
	defer streamer.Close()

	if format.SampleRate <= 0 {
		return 0, errors.New("failed to decode audio: invalid sample rate")
	}

	return format.SampleRate.D(streamer.Len()).Seconds(), nil
}

// Fixed is a Prober that always reports the same duration. Useful in tests
// and for backends that must not decode.
type Fixed float64

func (f Fixed) Duration(ctx context.Context, path string) (float64, error) {
	return float64(f), nil
}

// Func adapts a plain function to the Prober interface.
type Func func(ctx context.Context, path string) (float64, error)

func (f Func) Duration(ctx context.Context, path string) (float64, error) {
	return f(ctx, path)
}
