//go:build linux

package keyboard

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// input_event on 64-bit kernels: 16 bytes of timeval, then type, code, value.
const (
	eventSize   = 24
	typeOffset  = 16
	valueOffset = 20

	evKey    = 0x01
	keyPress = 1
)

// EvdevSource reads raw key events from every readable /dev/input/event*
// device. Key codes are parsed only far enough to distinguish a press from a
// release and are never stored.
type EvdevSource struct{}

// NewSystemSource returns the evdev-backed key source.
func NewSystemSource() *EvdevSource { return &EvdevSource{} }

// Available implements KeySource. Reading evdev usually requires membership
// in the input group.
func (s *EvdevSource) Available() bool { return len(s.devices()) > 0 }

func (s *EvdevSource) devices() []string {
	matches, _ := filepath.Glob("/dev/input/event*")
	var readable []string
	for _, path := range matches {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		f.Close()
		readable = append(readable, path)
	}
	return readable
}

// Watch implements KeySource, fanning all devices into one tick stream.
func (s *EvdevSource) Watch(ctx context.Context, ticks chan<- time.Time) error {
	devices := s.devices()
	if len(devices) == 0 {
		return errors.New("no readable /dev/input/event* devices")
	}

	var wg sync.WaitGroup
	for _, path := range devices {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		// Reads block with no deadline support, so cancellation closes the
		// file out from under the reader.
		go func() {
			<-ctx.Done()
			f.Close()
		}()

		wg.Add(1)
		go func() {
			defer wg.Done()
			readDevice(ctx, f, ticks)
		}()
	}

	wg.Wait()
	return ctx.Err()
}

func readDevice(ctx context.Context, f *os.File, ticks chan<- time.Time) {
	buf := make([]byte, eventSize*16)
	for {
		n, err := f.Read(buf)
		if err != nil {
			return
		}
		for off := 0; off+eventSize <= n; off += eventSize {
			typ := binary.LittleEndian.Uint16(buf[off+typeOffset:])
			value := int32(binary.LittleEndian.Uint32(buf[off+valueOffset:]))
			if typ != evKey || value != keyPress {
				continue
			}
			select {
			case ticks <- time.Now():
			default:
				// A full channel means the adapter is behind; dropping a
				// tick only shaves the rate estimate.
			}
		}
	}
}
