package auth

import (
	"crypto/rand"
	"encoding/binary"
	"time"
)

// TimingConfig bounds the delay added to failed code verifications
type TimingConfig struct {
	BaseDelay   time.Duration
	RandomDelay time.Duration // jitter range added on top of BaseDelay
}

// TimingDelay pads failed verifications to a floor so wrong codes, wrong
// tokens and expired challenges answer in roughly the same time
type TimingDelay struct {
	config TimingConfig
}

// NewTimingDelay returns nil when no delay is configured
func NewTimingDelay(config TimingConfig) *TimingDelay {
	if config.BaseDelay <= 0 && config.RandomDelay <= 0 {
		return nil
	}
	return &TimingDelay{config: config}
}

// cryptoRandDuration returns a random duration in [0, max)
func cryptoRandDuration(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0
	}
	return time.Duration(binary.BigEndian.Uint64(b[:]) % uint64(max))
}

// WaitFrom sleeps until at least base+jitter has passed since start.
// Successful operations return immediately. A nil TimingDelay never waits.
func (td *TimingDelay) WaitFrom(start time.Time, success bool) {
	if td == nil || success {
		return
	}

	target := td.config.BaseDelay + cryptoRandDuration(td.config.RandomDelay)
	if elapsed := time.Since(start); elapsed < target {
		time.Sleep(target - elapsed)
	}
}
