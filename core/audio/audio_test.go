package audio

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// pcmWav builds a mono 16-bit PCM file holding the given number of samples.
func pcmWav(sampleRate uint32, samples int) []byte {
	dataSize := uint32(samples * 2)
	var b bytes.Buffer
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36)+dataSize)
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	binary.Write(&b, binary.LittleEndian, uint16(1)) // mono
	binary.Write(&b, binary.LittleEndian, sampleRate)
	binary.Write(&b, binary.LittleEndian, sampleRate*2)
	binary.Write(&b, binary.LittleEndian, uint16(2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, dataSize)
	b.Write(make([]byte, dataSize))
	return b.Bytes()
}

func TestWavProberReadsHeaderDuration(t *testing.T) {
	d, err := WavProber{}.Probe(context.Background(), pcmWav(8000, 12000))
	if err != nil {
		t.Fatalf("Probe failed: %v", err)
	}
	if d != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %v", d)
	}
}

func TestWavProberRejectsNonWav(t *testing.T) {
	if _, err := (WavProber{}).Probe(context.Background(), []byte("ID3\x03not a wav")); err == nil {
		t.Fatal("expected error for non-wav input")
	}
}

type fixedProber struct {
	d   time.Duration
	err error
}

func (f fixedProber) Probe(context.Context, []byte) (time.Duration, error) { return f.d, f.err }

func TestChainFallsThrough(t *testing.T) {
	chain := Chain{fixedProber{err: errors.New("boom")}, nil, fixedProber{d: 3 * time.Second}}
	d, err := chain.Probe(context.Background(), nil)
	if err != nil || d != 3*time.Second {
		t.Fatalf("expected 3s from the last prober, got %v, %v", d, err)
	}
}

func TestChainReportsNoDuration(t *testing.T) {
	_, err := Chain{fixedProber{err: errors.New("boom")}}.Probe(context.Background(), nil)
	if !errors.Is(err, ErrNoDuration) {
		t.Fatalf("expected ErrNoDuration, got %v", err)
	}
}

func TestParseFFprobeDuration(t *testing.T) {
	d, err := parseFFprobeDuration([]byte(`{"format":{"duration":"1799.250000"}}`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if d != 1799250*time.Millisecond {
		t.Fatalf("unexpected duration %v", d)
	}
	if _, err := parseFFprobeDuration([]byte(`{"format":{}}`)); err == nil {
		t.Fatal("expected error for missing duration")
	}
}
