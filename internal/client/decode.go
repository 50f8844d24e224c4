package client

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/hajimehoshi/go-mp3"

	"github.com/zhouzirui/yui-companion/backend/internal/companion"
)

var (
	errUnknownFormat = errors.New("unrecognised audio format")
	errTruncatedWAV  = errors.New("truncated wav header")
)

// Decoder validates synthesized audio and reports its format and duration.
type Decoder interface {
	Decode(data []byte) (format string, duration time.Duration, err error)
}

// MP3Decoder accepts MP3 streams and RIFF/WAVE files.
type MP3Decoder struct{}

// Decode returns a *companion.DecodeError for anything it cannot play.
func (MP3Decoder) Decode(data []byte) (string, time.Duration, error) {
	switch {
	case isWAV(data):
		d, err := wavDuration(data)
		if err != nil {
			return "", 0, &companion.DecodeError{Format: "wav", Err: err}
		}
		return "wav", d, nil
	case isMP3(data):
		d, err := mp3Duration(data)
		if err != nil {
			return "", 0, &companion.DecodeError{Format: "mp3", Err: err}
		}
		return "mp3", d, nil
	default:
		return "", 0, &companion.DecodeError{Err: errUnknownFormat}
	}
}

func isMP3(data []byte) bool {
	if len(data) >= 3 && string(data[:3]) == "ID3" {
		return true
	}
	return len(data) >= 2 && data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

func isWAV(data []byte) bool {
	return len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE"
}

func mp3Duration(data []byte) (time.Duration, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, err
	}
	rate := dec.SampleRate()
	if rate <= 0 {
		return 0, fmt.Errorf("invalid sample rate %d", rate)
	}
	// decoded PCM is 16-bit stereo
	samples := dec.Length() / 4
	return time.Duration(samples) * time.Second / time.Duration(rate), nil
}

func wavDuration(data []byte) (time.Duration, error) {
	var byteRate uint32
	offset := 12
	for offset+8 <= len(data) {
		id := string(data[offset : offset+4])
		size := int(binary.LittleEndian.Uint32(data[offset+4 : offset+8]))
		body := offset + 8
		switch id {
		case "fmt ":
			if body+12 > len(data) {
				return 0, errTruncatedWAV
			}
			byteRate = binary.LittleEndian.Uint32(data[body+8 : body+12])
		case "data":
			if byteRate == 0 {
				return 0, errors.New("wav data chunk before fmt chunk")
			}
			if body+size > len(data) {
				size = len(data) - body
			}
			return time.Duration(size) * time.Second / time.Duration(byteRate), nil
		}
		// chunks are word aligned
		offset = body + size + size%2
	}
	return 0, errTruncatedWAV
}
