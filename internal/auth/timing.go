package auth

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig holds configuration for timing attack prevention
type TimingConfig struct {
	BaseDelayMs    int  // Base delay in milliseconds
	RandomDelayMs  int  // Random delay range in milliseconds
	DelayOnSuccess bool // If true, delay even on success
}

// DefaultTimingConfig pads failed magic-key checks to roughly half a second
func DefaultTimingConfig() TimingConfig {
	return TimingConfig{
		BaseDelayMs:   500,
		RandomDelayMs: 100,
	}
}

// TimingDelay pads failures to a constant-ish duration so an unknown key
// and a consumed key are indistinguishable by response time
type TimingDelay struct {
	config TimingConfig
}

func NewTimingDelay(config TimingConfig) *TimingDelay {
	return &TimingDelay{
		config: config,
	}
}

// cryptoRandIntn returns a secure random number between 0 and max (exclusive)
func cryptoRandIntn(max int) (int, error) {
	if max <= 0 {
		return 0, nil
	}

	randomBytes := make([]byte, 8)
	if _, err := rand.Read(randomBytes); err != nil {
		return 0, err
	}

	randomValue := binary.BigEndian.Uint64(randomBytes)
	return int(randomValue % uint64(max)), nil
}

func (td *TimingDelay) target() time.Duration {
	delay := time.Duration(td.config.BaseDelayMs) * time.Millisecond
	if td.config.RandomDelayMs > 0 {
		if n, err := cryptoRandIntn(td.config.RandomDelayMs); err == nil {
			delay += time.Duration(n) * time.Millisecond
		}
	}
	return delay
}

// Wait sleeps for base + random delay unless success and DelayOnSuccess is off
func (td *TimingDelay) Wait(success bool) {
	if success && !td.config.DelayOnSuccess {
		return
	}
	time.Sleep(td.target())
}

// WaitFrom applies delay relative to a start time, ensuring total elapsed time >= target
func (td *TimingDelay) WaitFrom(startTime time.Time, success bool) {
	_ = td.WaitFromContext(context.Background(), startTime, success)
}

// WaitFromContext is WaitFrom that returns early when ctx is done
func (td *TimingDelay) WaitFromContext(ctx context.Context, startTime time.Time, success bool) error {
	if success && !td.config.DelayOnSuccess {
		return nil
	}

	remaining := td.target() - time.Since(startTime)
	if remaining <= 0 {
		return nil
	}

	timer := time.NewTimer(remaining)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
