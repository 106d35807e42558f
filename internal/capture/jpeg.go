package capture

import (
	"bufio"
	"bytes"
	"context"
	"image/jpeg"
	"io"
	"time"

	"go-alias-scanner/internal/scan"
)

const megabyte = 1024 * 1024

var (
	jpegSOI = []byte{0xFF, 0xD8} // Start of Image
	jpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJPEG is a bufio.SplitFunc yielding one JPEG image per token from a
// stream of concatenated images (MJPEG, ffmpeg image2pipe)
func SplitJPEG(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, jpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], jpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// JPEGStream turns a byte stream of concatenated JPEGs into camera frames
type JPEGStream struct {
	Reader   io.Reader
	FPS      float64
	Rotation scan.Rotation
	Clock    scan.Clock

	// OnFrame, when set, is called for every image read, decoded or not
	OnFrame func(index int)
}

// Frames starts reading in the background. Frames that fail to decode are
// skipped; the channel closes at end of stream.
func (s *JPEGStream) Frames(ctx context.Context) (<-chan scan.Frame, error) {
	clock := s.Clock
	if clock == nil {
		clock = scan.SystemClock{}
	}

	var pace <-chan time.Time
	if s.FPS > 0 {
		ticker := time.NewTicker(time.Duration(float64(time.Second) / s.FPS))
		pace = ticker.C
		go func() {
			<-ctx.Done()
			ticker.Stop()
		}()
	}

	out := make(chan scan.Frame)
	go func() {
		defer close(out)

		scanner := bufio.NewScanner(s.Reader)
		scanner.Buffer(make([]byte, megabyte), 64*megabyte)
		scanner.Split(SplitJPEG)

		index := 0
		for scanner.Scan() {
			index++
			if s.OnFrame != nil {
				s.OnFrame(index)
			}

			img, err := jpeg.Decode(bytes.NewReader(scanner.Bytes()))
			if err != nil {
				continue
			}

			if pace != nil {
				select {
				case <-ctx.Done():
					return
				case <-pace:
				}
			}

			select {
			case <-ctx.Done():
				return
			case out <- scan.Frame{Image: img, CapturedAt: clock.Now(), Rotation: s.Rotation}:
			}
		}
	}()

	return out, nil
}
