package audio

import (
	"math"
	"testing"
	"time"
)

func TestSamplesRoundTrip(t *testing.T) {
	in := []int16{0, 1, -1, 32767, -32768, 1234}
	got := Samples(Bytes(in))
	if len(got) != len(in) {
		t.Fatalf("len = %d, want %d", len(got), len(in))
	}
	for i := range in {
		if got[i] != in[i] {
			t.Errorf("sample %d = %d, want %d", i, got[i], in[i])
		}
	}
}

func TestSamplesIgnoresOddTrailingByte(t *testing.T) {
	if got := Samples([]byte{0x01, 0x02, 0x03}); len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}

func TestResample(t *testing.T) {
	tests := []struct {
		name     string
		in       int
		from, to int
		want     int
	}{
		{"same rate", 320, 16000, 16000, 320},
		{"downsample 2:1", 960, 48000, 24000, 480},
		{"upsample 2:3", 320, 16000, 24000, 480},
		{"empty", 0, 16000, 48000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := make([]int16, tt.in)
			for i := range in {
				in[i] = int16(i)
			}
			got := Resample(in, tt.from, tt.to)
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestResampleInterpolates(t *testing.T) {
	// Doubling the rate of a ramp keeps it monotonic.
	in := []int16{0, 100, 200, 300}
	out := Resample(in, 8000, 16000)
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("output not monotonic at %d: %v", i, out)
		}
	}
}

func TestRMS(t *testing.T) {
	if got := RMS(nil); got != 0 {
		t.Errorf("RMS(nil) = %v, want 0", got)
	}

	silence := Bytes(make([]int16, 160))
	if got := RMS(silence); got != 0 {
		t.Errorf("RMS(silence) = %v, want 0", got)
	}

	loud := make([]int16, 160)
	for i := range loud {
		loud[i] = 16384
	}
	got := RMS(Bytes(loud))
	if math.Abs(got-0.5) > 0.001 {
		t.Errorf("RMS = %v, want 0.5", got)
	}
}

func TestDuration(t *testing.T) {
	// 320 samples at 16kHz is a 20ms frame.
	if got := Duration(640, 16000); got != 20*time.Millisecond {
		t.Errorf("Duration = %v, want 20ms", got)
	}
	if got := Duration(640, 0); got != 0 {
		t.Errorf("Duration with zero rate = %v, want 0", got)
	}
}
