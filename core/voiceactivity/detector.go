package voiceactivity

import (
	"context"
	"math"
	"sync"
)

// Detector classifies audio frames as speech or silence. Classifications
// are reported through the callback given to Start, possibly from another
// goroutine.
type Detector interface {
	Start(ctx context.Context, onActivity func(speech bool)) error
	Feed(frame []byte) error
	Stop() error
}

const DefaultEnergyThreshold = 0.02

// EnergyDetector marks a frame as speech when its RMS energy reaches
// Threshold. Classification happens synchronously inside Feed.
type EnergyDetector struct {
	Threshold float64

	mu         sync.Mutex
	onActivity func(bool)
}

func NewEnergyDetector(threshold float64) *EnergyDetector {
	if threshold <= 0 {
		threshold = DefaultEnergyThreshold
	}
	return &EnergyDetector{Threshold: threshold}
}

func (d *EnergyDetector) Start(_ context.Context, onActivity func(speech bool)) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.onActivity = onActivity
	return nil
}

func (d *EnergyDetector) Feed(frame []byte) error {
	d.mu.Lock()
	onActivity := d.onActivity
	d.mu.Unlock()

	if onActivity == nil || len(frame) < 2 {
		return nil
	}

	onActivity(RMSEnergy(frame) >= d.Threshold)
	return nil
}

func (d *EnergyDetector) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.onActivity = nil
	return nil
}

// RMSEnergy returns the root mean square of PCM16 little endian audio,
// normalized to 0..1.
func RMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples*2; i += 2 {
		sample := int16(pcm[i]) | int16(pcm[i+1])<<8
		normalized := float64(sample) / 32768.0
		sum += normalized * normalized
	}

	return math.Sqrt(sum / float64(samples))
}
