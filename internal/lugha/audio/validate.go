package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"time"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

// Container formats accepted by Validate.
const (
	FormatWAV        = "wav"
	FormatMP3        = "mp3"
	FormatOggVorbis  = "ogg/vorbis"
	FormatOggOpus    = "ogg/opus"
	opusGranuleRate  = 48000
	sniffHeaderBytes = 12
)

// ErrUnsupportedFormat is returned for containers Validate does not know.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Info describes a validated recording.
type Info struct {
	Format   string
	MIMEType string
	Duration time.Duration
}

// Ext returns the file extension used for blob keys.
func (i Info) Ext() string { return ext(i.MIMEType) }

// Validate sniffs the container at path and decodes enough of it to prove
// the bytes are playable audio, returning the format and duration.
func Validate(path string) (*Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, sniffHeaderBytes)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("read header: %w", err)
	}
	head = head[:n]
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	switch {
	case len(head) >= 12 && bytes.Equal(head[:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return validateWAV(f)
	case bytes.HasPrefix(head, []byte("OggS")):
		return validateOgg(f)
	case bytes.HasPrefix(head, []byte("ID3")), len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return validateMP3(f)
	}
	return nil, ErrUnsupportedFormat
}

func validateWAV(f io.ReadSeeker) (*Info, error) {
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	d, err := dec.Duration()
	if err != nil {
		return nil, fmt.Errorf("wav duration: %w", err)
	}
	if d <= 0 {
		return nil, errors.New("empty wav")
	}
	return &Info{Format: FormatWAV, MIMEType: "audio/wav", Duration: d}, nil
}

func validateMP3(f io.ReadSeeker) (*Info, error) {
	dec, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	rate := dec.SampleRate()
	length := dec.Length() // bytes of 16-bit stereo PCM
	if rate <= 0 || length <= 0 {
		return nil, errors.New("empty mp3")
	}
	// Decode one buffer to prove the frames are readable.
	buf := make([]byte, 4096)
	if _, err := io.ReadFull(dec, buf); err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, fmt.Errorf("mp3 decode: %w", err)
	}
	d, err := samplesDuration(length/4, int64(rate))
	if err != nil {
		return nil, fmt.Errorf("mp3: %w", err)
	}
	return &Info{Format: FormatMP3, MIMEType: "audio/mpeg", Duration: d}, nil
}

func validateOgg(f io.ReadSeeker) (*Info, error) {
	stream, err := scanOgg(f)
	if err != nil {
		return nil, err
	}

	switch stream.codec {
	case codecOpus:
		samples := stream.lastGranule - int64(stream.preSkip)
		if samples <= 0 {
			return nil, errors.New("empty opus stream")
		}
		d, err := samplesDuration(samples, opusGranuleRate)
		if err != nil {
			return nil, fmt.Errorf("opus: %w", err)
		}
		return &Info{Format: FormatOggOpus, MIMEType: "audio/ogg", Duration: d}, nil

	case codecVorbis:
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		r, err := oggvorbis.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("vorbis: %w", err)
		}
		buf := make([]float32, 4096)
		if _, err := r.Read(buf); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("vorbis decode: %w", err)
		}
		rate := r.SampleRate()
		length := r.Length()
		if length <= 0 {
			length = stream.lastGranule
		}
		if rate <= 0 || length <= 0 {
			return nil, errors.New("empty vorbis stream")
		}
		d, err := samplesDuration(length, int64(rate))
		if err != nil {
			return nil, fmt.Errorf("vorbis: %w", err)
		}
		return &Info{Format: FormatOggVorbis, MIMEType: "audio/ogg", Duration: d}, nil
	}
	return nil, fmt.Errorf("%w: ogg stream with unknown codec", ErrUnsupportedFormat)
}

// samplesDuration converts a sample count at rate Hz into a duration. Counts
// whose duration does not fit in a time.Duration are rejected, not wrapped.
func samplesDuration(samples, rate int64) (time.Duration, error) {
	if samples <= 0 || rate <= 0 {
		return 0, errors.New("empty stream")
	}
	secs := float64(samples) / float64(rate)
	if (secs+1)*float64(time.Second) >= math.MaxInt64 {
		return 0, fmt.Errorf("implausible length of %d samples at %d Hz", samples, rate)
	}
	whole := samples / rate
	frac := samples % rate
	return time.Duration(whole)*time.Second + time.Duration(frac)*time.Second/time.Duration(rate), nil
}
