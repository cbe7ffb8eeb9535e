package transcription

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/orcaman/writerseeker"
)

// Chunk is one fixed-length window of a WAV recording, encoded as its own WAV
type Chunk struct {
	Index int
	Start float64
	End   float64
	Data  []byte
}

// Duration returns the length of a WAV recording in seconds
func Duration(wavData []byte) (float64, error) {
	decoder := wav.NewDecoder(bytes.NewReader(wavData))
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return 0, fmt.Errorf("read wave file headers: %w", err)
	}

	d, err := decoder.Duration()
	if err != nil {
		return 0, fmt.Errorf("get audio duration from wave headers: %w", err)
	}
	return d.Seconds(), nil
}

// SplitWAV slices a WAV recording into windows of the given length. The last
// chunk holds whatever remains and may be shorter.
func SplitWAV(wavData []byte, window float64) ([]Chunk, error) {
	if window <= 0 {
		return nil, fmt.Errorf("window must be positive, got %.2f", window)
	}

	decoder := wav.NewDecoder(bytes.NewReader(wavData))
	decoder.ReadInfo()
	if err := decoder.Err(); err != nil {
		return nil, fmt.Errorf("read wave file headers: %w", err)
	}
	buffer, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("read full pcm buffer: %w", err)
	}

	sampleRate := int(decoder.SampleRate)
	channels := int(decoder.NumChans)
	bitDepth := int(decoder.BitDepth)
	if sampleRate == 0 || channels == 0 {
		return nil, fmt.Errorf("wave file has no format information")
	}

	framesPerWindow := int(window * float64(sampleRate))
	if framesPerWindow < 1 {
		framesPerWindow = 1
	}
	step := framesPerWindow * channels

	var chunks []Chunk
	for offset, i := 0, 0; offset < len(buffer.Data); offset, i = offset+step, i+1 {
		end := offset + step
		if end > len(buffer.Data) {
			end = len(buffer.Data)
		}

		data, err := EncodeWAV(&audio.IntBuffer{
			Format:         &audio.Format{SampleRate: sampleRate, NumChannels: channels},
			SourceBitDepth: bitDepth,
			Data:           buffer.Data[offset:end],
		})
		if err != nil {
			return nil, fmt.Errorf("encode chunk %d: %w", i, err)
		}

		chunks = append(chunks, Chunk{
			Index: i,
			Start: float64(offset/channels) / float64(sampleRate),
			End:   float64(end/channels) / float64(sampleRate),
			Data:  data,
		})
	}
	return chunks, nil
}

// EncodeWAV writes buf as a PCM WAV file held in memory
func EncodeWAV(buf *audio.IntBuffer) ([]byte, error) {
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = 16
	}

	wavFile := &writerseeker.WriterSeeker{}
	encoder := wav.NewEncoder(wavFile, buf.Format.SampleRate, bitDepth, buf.Format.NumChannels, 1)

	if err := encoder.Write(buf); err != nil {
		return nil, fmt.Errorf("encoder write buffer: %w", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, fmt.Errorf("encoder close: %w", err)
	}

	data, err := io.ReadAll(wavFile.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading file into memory: %w", err)
	}
	return data, nil
}
