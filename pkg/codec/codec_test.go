package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"math/rand"
	"testing"
)

func TestPCM16FromFloat(t *testing.T) {
	tests := []struct {
		name string
		in   float32
		want int16
	}{
		{"zero", 0, 0},
		{"full positive", 1, 32767},
		{"full negative", -1, -32767},
		{"clip positive", 2.5, 32767},
		{"clip negative", -3, -32768},
		{"half", 0.5, 16384},
		{"small negative", -0.25, -8192},
		{"nan", float32(math.NaN()), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PCM16FromFloat([]float32{tt.in})
			if got[0] != tt.want {
				t.Errorf("PCM16FromFloat(%v) = %d, want %d", tt.in, got[0], tt.want)
			}
		})
	}
}

func TestPCM16FromFloat_Monotonic(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := make([]float32, 4096)
	for i := range samples {
		samples[i] = float32(rng.Float64()*4 - 2)
	}

	out := PCM16FromFloat(samples)
	for i := range samples {
		for j := range samples {
			if samples[i] < samples[j] && out[i] > out[j] {
				t.Fatalf("quantization not monotonic: %v->%d, %v->%d", samples[i], out[i], samples[j], out[j])
			}
		}
		if i > 256 {
			break
		}
	}
}

func TestInt16BytesRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 1234}
	data := Int16ToBytes(samples)

	if len(data) != len(samples)*2 {
		t.Fatalf("len = %d, want %d", len(data), len(samples)*2)
	}
	if data[2] != 0x01 || data[3] != 0x00 {
		t.Errorf("not little-endian: % x", data[2:4])
	}

	back := BytesToInt16(data)
	for i := range samples {
		if back[i] != samples[i] {
			t.Errorf("sample %d = %d, want %d", i, back[i], samples[i])
		}
	}

	if got := BytesToInt16([]byte{1, 0, 9}); len(got) != 1 {
		t.Errorf("odd trailing byte should be dropped, got %d samples", len(got))
	}
}

func TestWAVFromPCM_Header(t *testing.T) {
	pcm := []byte{1, 2, 3, 4, 5, 6}
	wav := WAVFromPCM(pcm, 24000)

	if len(wav) != 44+len(pcm) {
		t.Fatalf("len = %d, want %d", len(wav), 44+len(pcm))
	}

	checks := []struct {
		name   string
		offset int
		size   int
		want   uint32
	}{
		{"ChunkSize", 4, 4, 36 + uint32(len(pcm))},
		{"Subchunk1Size", 16, 4, 16},
		{"AudioFormat", 20, 2, 1},
		{"NumChannels", 22, 2, 1},
		{"SampleRate", 24, 4, 24000},
		{"ByteRate", 28, 4, 48000},
		{"BlockAlign", 32, 2, 2},
		{"BitsPerSample", 34, 2, 16},
		{"Subchunk2Size", 40, 4, uint32(len(pcm))},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			var got uint32
			if c.size == 2 {
				got = uint32(binary.LittleEndian.Uint16(wav[c.offset:]))
			} else {
				got = binary.LittleEndian.Uint32(wav[c.offset:])
			}
			if got != c.want {
				t.Errorf("%s = %d, want %d", c.name, got, c.want)
			}
		})
	}

	for offset, tag := range map[int]string{0: "RIFF", 8: "WAVE", 12: "fmt ", 36: "data"} {
		if string(wav[offset:offset+4]) != tag {
			t.Errorf("tag at %d = %q, want %q", offset, wav[offset:offset+4], tag)
		}
	}

	if !bytes.Equal(wav[44:], pcm) {
		t.Error("payload not copied after header")
	}
}

func TestWAVFromPCM_SizeInvariant(t *testing.T) {
	for _, n := range []int{0, 1, 2, 47, 4096, 48000} {
		wav := WAVFromPCM(make([]byte, n), 16000)
		if len(wav) != 44+n {
			t.Errorf("n=%d: len = %d", n, len(wav))
		}
		if got := binary.LittleEndian.Uint32(wav[4:]); got != uint32(36+n) {
			t.Errorf("n=%d: ChunkSize = %d", n, got)
		}
		if got := binary.LittleEndian.Uint32(wav[40:]); got != uint32(n) {
			t.Errorf("n=%d: Subchunk2Size = %d", n, got)
		}
	}
}

func TestBase64RoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	inputs := [][]byte{{}, {0}, {0xff, 0xfe}, []byte("hello")}
	for i := 0; i < 10; i++ {
		b := make([]byte, rng.Intn(5000))
		rng.Read(b)
		inputs = append(inputs, b)
	}

	for _, in := range inputs {
		out, err := DecodeBase64(EncodeBase64(in))
		if err != nil {
			t.Fatalf("DecodeBase64: %v", err)
		}
		if !bytes.Equal(out, in) {
			t.Fatalf("round trip mismatch for %d bytes", len(in))
		}
	}
}

func TestDecodeBase64_Error(t *testing.T) {
	_, err := DecodeBase64("not*base64")
	if err == nil {
		t.Fatal("expected error")
	}

	var decErr *DecodeError
	if !errors.As(err, &decErr) {
		t.Fatalf("error type = %T, want *DecodeError", err)
	}
	if decErr.Length != len("not*base64") {
		t.Errorf("Length = %d", decErr.Length)
	}
	if decErr.Unwrap() == nil {
		t.Error("Unwrap should expose the decoder error")
	}
}

func TestPeakAmplitude(t *testing.T) {
	if got := PeakAmplitude([]float32{0.1, -0.7, 0.3}); got != 0.7 {
		t.Errorf("peak = %v, want 0.7", got)
	}
	if got := PeakAmplitude(nil); got != 0 {
		t.Errorf("peak of empty = %v", got)
	}
}

func TestLevels(t *testing.T) {
	samples := make([]float32, 40)
	for i := 20; i < 40; i++ {
		samples[i] = -0.5
	}

	levels := Levels(samples, 4)
	if len(levels) != 4 {
		t.Fatalf("len = %d", len(levels))
	}
	if levels[0] != 0 || levels[1] != 0 {
		t.Errorf("silent buckets = %v", levels[:2])
	}
	if levels[2] != 0.5 || levels[3] != 0.5 {
		t.Errorf("loud buckets = %v", levels[2:])
	}

	if got := Levels(samples[:2], 4); len(got) != 4 || got[0] != 0 {
		t.Errorf("short input = %v", got)
	}
	if Levels(samples, 0) != nil {
		t.Error("zero bars should return nil")
	}
}
