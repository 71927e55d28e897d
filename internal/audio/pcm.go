package audio

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Format describes 16-bit little-endian PCM audio
type Format struct {
	SampleRate int
	Channels   int
}

// BytesPerSecond returns the PCM16 byte rate of the format
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.Channels * 2
}

// FrameBytes returns the size in bytes of a frame lasting ms milliseconds
func (f Format) FrameBytes(ms int) int {
	n := f.BytesPerSecond() * ms / 1000
	// keep frames sample-aligned
	align := 2 * f.Channels
	if align > 0 {
		n -= n % align
	}
	return n
}

// Validate checks the format is usable
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", f.SampleRate)
	}
	if f.Channels <= 0 {
		return fmt.Errorf("invalid channel count %d", f.Channels)
	}
	return nil
}

// BytesToSamples decodes little-endian PCM16 bytes
func BytesToSamples(pcm []byte) ([]int16, error) {
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("PCM data length must be even (16-bit samples)")
	}
	samples := make([]int16, len(pcm)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	return samples, nil
}

// SamplesToBytes encodes samples as little-endian PCM16
func SamplesToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// Resample performs linear interpolation resampling of mono samples.
func Resample(samples []int16, inputRate, outputRate int) []int16 {
	if inputRate == outputRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(outputRate) / float64(inputRate)
	outputLength := int(float64(len(samples)) * ratio)
	output := make([]int16, outputLength)

	for i := 0; i < outputLength; i++ {
		srcPos := float64(i) / ratio
		idx0 := int(srcPos)
		idx1 := idx0 + 1
		if idx1 >= len(samples) {
			idx1 = len(samples) - 1
		}
		fraction := srcPos - float64(idx0)
		output[i] = int16(float64(samples[idx0])*(1.0-fraction) + float64(samples[idx1])*fraction)
	}

	return output
}

// Downmix averages interleaved channels into mono
func Downmix(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}

// NormalizeAudio scales samples so the peak reaches targetPeak. Gain is
// capped at maxGain so quiet recordings get louder without turning room noise
// into a roar. Loud recordings are always scaled down to targetPeak.
func NormalizeAudio(samples []int16, targetPeak int16, maxGain float64) []int16 {
	if len(samples) == 0 || targetPeak <= 0 {
		return samples
	}

	maxVal := 0
	for _, sample := range samples {
		abs := int(sample)
		if abs < 0 {
			abs = -abs
		}
		if abs > maxVal {
			maxVal = abs
		}
	}
	if maxVal == 0 || maxVal == int(targetPeak) {
		return samples
	}

	ratio := float64(targetPeak) / float64(maxVal)
	if ratio > 1 && maxGain > 0 && ratio > maxGain {
		ratio = maxGain
	}
	if ratio > 1 && maxGain <= 1 {
		return samples
	}

	normalized := make([]int16, len(samples))
	for i, sample := range samples {
		normalized[i] = int16(float64(sample) * ratio)
	}
	return normalized
}

// NormalizePCM applies NormalizeAudio to PCM16 bytes. Odd-length input is
// returned unchanged.
func NormalizePCM(pcm []byte, targetPeak int16, maxGain float64) []byte {
	samples, err := BytesToSamples(pcm)
	if err != nil {
		return pcm
	}
	return SamplesToBytes(NormalizeAudio(samples, targetPeak, maxGain))
}

// CalculateRMS calculates the root mean square (RMS) of audio samples
func CalculateRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0.0
	}

	sum := 0.0
	for _, sample := range samples {
		sum += float64(sample) * float64(sample)
	}

	return math.Sqrt(sum / float64(len(samples)))
}
