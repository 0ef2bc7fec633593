//go:build !linux

package keyboard

import (
	"context"
	"time"

	"github.com/deskclaw/deskclaw/adapter"
)

// EvdevSource has no implementation off Linux; the adapter reports itself
// unavailable and the manager skips it.
type EvdevSource struct{}

// NewSystemSource returns the stub key source for this platform.
func NewSystemSource() *EvdevSource { return &EvdevSource{} }

// Available implements KeySource.
func (s *EvdevSource) Available() bool { return false }

// Watch implements KeySource.
func (s *EvdevSource) Watch(ctx context.Context, ticks chan<- time.Time) error {
	return adapter.ErrUnsupportedPlatform
}
