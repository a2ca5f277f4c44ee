package audio

import (
	"bytes"
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// decode reads every sample of a WAV file, scaled to signed 16-bit.
func decode(data []byte) (*goaudio.IntBuffer, Info, error) {
	info, err := Inspect(data)
	if err != nil {
		return nil, Info{}, err
	}
	buf, err := wav.NewDecoder(bytes.NewReader(data)).FullPCMBuffer()
	if err != nil {
		return nil, Info{}, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}
	to16(buf.Data, info.BitDepth)
	return buf, info, nil
}

func to16(samples []int, depth int) {
	switch {
	case depth == 8:
		// 8-bit WAV is unsigned.
		for i, s := range samples {
			samples[i] = (s - 128) << 8
		}
	case depth > 16:
		shift := depth - 16
		for i, s := range samples {
			samples[i] = s >> shift
		}
	}
}

// DecodePCM16 reads a WAV file into interleaved 16-bit little-endian PCM.
// Other bit depths are rescaled.
func DecodePCM16(data []byte) ([]byte, Info, error) {
	buf, info, err := decode(data)
	if err != nil {
		return nil, Info{}, err
	}
	pcm := make([]byte, 0, 2*len(buf.Data))
	for _, s := range buf.Data {
		pcm = append(pcm, byte(s), byte(s>>8))
	}
	return pcm, info, nil
}

// ToMono16 converts a WAV file to mono 16-bit at sampleRate. A file already
// in that format is returned as is.
func ToMono16(data []byte, sampleRate int) ([]byte, error) {
	buf, info, err := decode(data)
	if err != nil {
		return nil, err
	}
	if info.Channels == 1 && info.BitDepth == 16 && info.SampleRate == sampleRate {
		return data, nil
	}
	mono := Resample(Downmix(buf.Data, info.Channels), info.SampleRate, sampleRate)

	pcm := make([]byte, 0, 2*len(mono))
	for _, s := range mono {
		pcm = append(pcm, byte(s), byte(s>>8))
	}
	out, err := EncodeWAV(pcm, sampleRate, 1)
	if err != nil {
		return nil, fmt.Errorf("audio: convert %d Hz/%d ch: %w", info.SampleRate, info.Channels, err)
	}
	return out, nil
}

// Downmix averages each frame of interleaved samples into one sample. A
// trailing partial frame is dropped.
func Downmix(samples []int, channels int) []int {
	if channels <= 1 {
		return samples
	}
	mono := make([]int, len(samples)/channels)
	for i := range mono {
		sum := 0
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += s
		}
		mono[i] = sum / channels
	}
	return mono
}

// Resample converts mono samples from src to dst Hz by linear
// interpolation. Non-positive or equal rates return samples unchanged.
func Resample(samples []int, src, dst int) []int {
	if src <= 0 || dst <= 0 || src == dst || len(samples) < 2 {
		return samples
	}
	n := int(int64(len(samples)) * int64(dst) / int64(src))
	out := make([]int, n)
	step := float64(src) / float64(dst)
	last := len(samples) - 1
	for i := range out {
		pos := float64(i) * step
		j := int(pos)
		if j >= last {
			out[i] = samples[last]
			continue
		}
		frac := pos - float64(j)
		out[i] = int(math.Round(float64(samples[j])*(1-frac) + float64(samples[j+1])*frac))
	}
	return out
}
