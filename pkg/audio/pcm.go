// Package audio provides PCM16 utilities shared by the capture and
// synthesis paths: sample conversion, linear resampling, signal level, and
// playback duration.
package audio

import (
	"encoding/binary"
	"math"
	"time"
)

// Samples converts little-endian PCM16 bytes to int16 samples.
// An odd trailing byte is ignored.
func Samples(data []byte) []int16 {
	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2:]))
	}
	return samples
}

// Bytes converts int16 samples to little-endian PCM16 bytes.
func Bytes(samples []int16) []byte {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return data
}

// Resample converts samples between rates using linear interpolation.
// Good enough for speech; not intended for music.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	n := int(float64(len(samples)) / ratio)
	if n == 0 {
		return []int16{}
	}

	out := make([]int16, n)
	for i := range out {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		s1 := float64(samples[idx])
		s2 := float64(samples[idx+1])
		out[i] = int16(s1 + frac*(s2-s1))
	}
	return out
}

// ResampleBytes resamples raw PCM16 bytes between rates.
func ResampleBytes(data []byte, fromRate, toRate int) []byte {
	if fromRate == toRate {
		return data
	}
	return Bytes(Resample(Samples(data), fromRate, toRate))
}

// RMS returns the normalized root-mean-square level of a PCM16 frame,
// in the range 0.0-1.0.
func RMS(pcm16 []byte) float64 {
	samples := Samples(pcm16)
	if len(samples) == 0 {
		return 0
	}

	var sum float64
	for _, s := range samples {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Duration returns the playback length of nbytes of mono PCM16 at the given
// sample rate.
func Duration(nbytes, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	samples := nbytes / 2
	return time.Duration(float64(samples) / float64(sampleRate) * float64(time.Second))
}
