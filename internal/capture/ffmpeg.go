package capture

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"runtime"

	"go-alias-scanner/internal/scan"
)

// FFmpegCamera captures frames from a camera device or video file through ffmpeg
type FFmpegCamera struct {
	Input    string
	Format   string // ffmpeg input format, e.g. v4l2 or avfoundation; empty for files
	FPS      float64
	Rotation scan.Rotation

	stderr bytes.Buffer
}

// NewFFmpegCamera creates a camera for the given device using the platform's capture format
func NewFFmpegCamera(input string) *FFmpegCamera {
	format := ""
	switch runtime.GOOS {
	case "linux":
		format = "v4l2"
	case "darwin":
		format = "avfoundation"
	}
	return &FFmpegCamera{Input: input, Format: format, FPS: 30, Rotation: scan.RotateNone}
}

// Args returns the ffmpeg command line producing an MJPEG pipe
func (c *FFmpegCamera) Args() []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if c.Format != "" {
		args = append(args, "-f", c.Format)
	}
	args = append(args, "-i", c.Input, "-f", "image2pipe", "-vcodec", "mjpeg")
	if c.FPS > 0 {
		args = append(args, "-r", fmt.Sprintf("%g", c.FPS))
	}
	return append(args, "-")
}

// Frames starts ffmpeg and streams its frames; the process is killed when ctx ends
func (c *FFmpegCamera) Frames(ctx context.Context) (<-chan scan.Frame, error) {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return nil, fmt.Errorf("ffmpeg not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "ffmpeg", c.Args()...)
	cmd.Stderr = &c.stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	// Pacing comes from ffmpeg itself
	stream := &JPEGStream{Reader: stdout, Rotation: c.Rotation}
	frames, err := stream.Frames(ctx)
	if err != nil {
		_ = cmd.Process.Kill()
		return nil, err
	}

	out := make(chan scan.Frame)
	go func() {
		defer close(out)
		for f := range frames {
			select {
			case out <- f:
			case <-ctx.Done():
			}
		}
		_ = cmd.Wait()
	}()
	return out, nil
}

// Stderr returns what ffmpeg logged so far
func (c *FFmpegCamera) Stderr() string {
	return c.stderr.String()
}
