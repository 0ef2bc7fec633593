package voice

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// AudioSource opens a raw PCM stream from the microphone: 16-bit
// little-endian mono at the requested sample rate.
type AudioSource interface {
	// Available reports whether the source can open on this machine.
	Available() bool

	// Open starts capture. The returned reader delivers raw PCM until Close
	// or context cancellation.
	Open(ctx context.Context, sampleRate int) (io.ReadCloser, error)
}

// recorder describes one external capture tool and how to ask it for raw
// 16-bit mono PCM on stdout.
type recorder struct {
	binary string
	args   func(sampleRate int) []string
}

// recorders are probed in order; the first installed binary wins.
var recorders = []recorder{
	{
		binary: "sox",
		args: func(rate int) []string {
			return []string{"-q", "-d", "-t", "raw", "-r", fmt.Sprint(rate), "-e", "signed", "-b", "16", "-c", "1", "-"}
		},
	},
	{
		binary: "rec",
		args: func(rate int) []string {
			return []string{"-q", "-t", "raw", "-r", fmt.Sprint(rate), "-e", "signed", "-b", "16", "-c", "1", "-"}
		},
	},
	{
		binary: "arecord",
		args: func(rate int) []string {
			return []string{"-q", "-f", "S16_LE", "-r", fmt.Sprint(rate), "-c", "1", "-t", "raw"}
		},
	},
}

// SystemSource captures audio through whichever supported recorder binary is
// installed (sox, rec, or arecord), keeping the adapter free of cgo audio
// bindings.
type SystemSource struct{}

// NewSystemSource returns the exec-backed microphone source.
func NewSystemSource() *SystemSource { return &SystemSource{} }

// Available implements AudioSource.
func (s *SystemSource) Available() bool {
	return s.find() != nil
}

func (s *SystemSource) find() *recorder {
	for i := range recorders {
		if recorders[i].binary == "arecord" && runtime.GOOS != "linux" {
			continue
		}
		if _, err := exec.LookPath(recorders[i].binary); err == nil {
			return &recorders[i]
		}
	}
	return nil
}

// Open implements AudioSource.
func (s *SystemSource) Open(ctx context.Context, sampleRate int) (io.ReadCloser, error) {
	rec := s.find()
	if rec == nil {
		return nil, fmt.Errorf("voice: no audio recorder found (install sox or alsa-utils)")
	}

	cmd := exec.CommandContext(ctx, rec.binary, rec.args(sampleRate)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("voice: %s stdout: %w", rec.binary, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("voice: start %s: %w", rec.binary, err)
	}

	return &processStream{ReadCloser: stdout, cmd: cmd}, nil
}

// processStream ties the PCM reader to the recorder process so Close reaps
// it.
type processStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (p *processStream) Close() error {
	err := p.ReadCloser.Close()
	if p.cmd.Process != nil {
		_ = p.cmd.Process.Kill()
	}
	_ = p.cmd.Wait()
	return err
}
