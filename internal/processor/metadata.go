package processor

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/MikeSquared-Agency/autonote/internal/notebook"
)

// ExtractMetadata describes the file at path. Duration is filled in only for
// WAV files whose header can be read.
func ExtractMetadata(path string) (*notebook.AudioMetadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	meta := &notebook.AudioMetadata{
		FileSizeBytes:    info.Size(),
		FileSizeMB:       round2(float64(info.Size()) / (1024 * 1024)),
		CreatedTimestamp: info.ModTime(),
	}
	if strings.EqualFold(filepath.Ext(path), ".wav") {
		if d, err := wavDuration(path); err == nil {
			d = round2(d)
			meta.DurationSeconds = &d
		}
	}
	return meta, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

var errNotWAV = errors.New("not a wav file")

// wavDuration walks the RIFF chunks for "fmt " and "data" and returns the
// data length in seconds.
func wavDuration(path string) (float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var header [12]byte
	if _, err := io.ReadFull(f, header[:]); err != nil {
		return 0, err
	}
	if !bytes.Equal(header[0:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
		return 0, errNotWAV
	}

	var (
		sampleRate uint32
		blockAlign uint16
		haveFmt    bool
	)
	for {
		var chunk [8]byte
		if _, err := io.ReadFull(f, chunk[:]); err != nil {
			return 0, fmt.Errorf("read chunk header: %w", err)
		}
		id := string(chunk[0:4])
		size := int64(binary.LittleEndian.Uint32(chunk[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return 0, errNotWAV
			}
			var fmtChunk [16]byte
			if _, err := io.ReadFull(f, fmtChunk[:]); err != nil {
				return 0, err
			}
			sampleRate = binary.LittleEndian.Uint32(fmtChunk[4:8])
			blockAlign = binary.LittleEndian.Uint16(fmtChunk[12:14])
			haveFmt = true
			if _, err := f.Seek(size-16+size%2, io.SeekCurrent); err != nil {
				return 0, err
			}
		case "data":
			if !haveFmt || sampleRate == 0 || blockAlign == 0 {
				return 0, errNotWAV
			}
			frames := size / int64(blockAlign)
			return float64(frames) / float64(sampleRate), nil
		default:
			// Chunks are padded to even sizes.
			if _, err := f.Seek(size+size%2, io.SeekCurrent); err != nil {
				return 0, err
			}
		}
	}
}
