package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go-alias-scanner/internal/capture"
	"go-alias-scanner/internal/flow"
	"go-alias-scanner/internal/repository"
	"go-alias-scanner/internal/scan"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

type replayOptions struct {
	InputPath  string
	MotionFile string
	FPS        float64
	Rotation   int
	Realtime   bool
	Remote     bool
	OutputPath string
}

var replayOpts replayOptions

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Run a recorded clip through the scan pipeline and print its outcomes",
	Long: `Feeds an MJPEG stream (or any video ffmpeg can read) through the same
pipeline the live session uses and writes one JSON line per outcome.
Images that would be sent to text recognition are reported as
needs_remote_classification; with --remote they are also sent through the
configured services and every flow event is written as well.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runReplay(cmd, replayOpts)
	},
}

func init() {
	replayCmd.Flags().StringVarP(&replayOpts.InputPath, "input", "i", "", "MJPEG file (.mjpeg, .mjpg) or video path")
	replayCmd.Flags().StringVarP(&replayOpts.MotionFile, "motion", "m", "", "CSV of x,y,z accelerometer samples")
	replayCmd.Flags().Float64Var(&replayOpts.FPS, "fps", 30, "Frame rate of the recording")
	replayCmd.Flags().IntVarP(&replayOpts.Rotation, "rotation", "r", -1, "Sensor rotation in degrees (default from config)")
	replayCmd.Flags().BoolVar(&replayOpts.Realtime, "realtime", false, "Pace frames at --fps using the wall clock")
	replayCmd.Flags().BoolVar(&replayOpts.Remote, "remote", false, "Send outcomes through the configured recognition and alias services")
	replayCmd.Flags().StringVarP(&replayOpts.OutputPath, "output", "o", "", "Write outcomes to this file instead of stdout")

	replayCmd.MarkFlagRequired("input")
	rootCmd.AddCommand(replayCmd)
}

// inlineDispatcher delivers outcomes on the pipeline goroutine so none are
// lost when the clip ends
type inlineDispatcher struct{}

func (inlineDispatcher) Dispatch(fn func()) { fn() }

// fixedClock always reports the same instant
type fixedClock time.Time

func (c fixedClock) Now() time.Time { return time.Time(c) }

// frameClock advances one frame period per reading
type frameClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func (c *frameClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(c.step)
	return now
}

type replayLine struct {
	Frame   int                 `json:"frame"`
	Offset  string              `json:"offset"`
	Kind    scan.OutcomeKind    `json:"kind"`
	Payload string              `json:"payload,omitempty"`
	Codes   []scan.DetectedCode `json:"codes,omitempty"`
}

type replayEvent struct {
	Event flow.Event `json:"event"`
}

// settled reports flow states that end one recognition round
func settled(state flow.State) bool {
	switch state {
	case flow.StateAliasResolved, flow.StateAliasNotFound, flow.StateQRFound, flow.StateBarcodeFound, flow.StateChoosingCode:
		return true
	}
	return false
}

func runReplay(cmd *cobra.Command, opts replayOptions) error {
	if opts.FPS <= 0 {
		return errors.New("--fps must be positive")
	}

	pipelineCfg, err := cfg.Scanner.Pipeline()
	if err != nil {
		return err
	}
	if opts.Rotation >= 0 {
		if pipelineCfg.Rotation, err = scan.ParseRotation(opts.Rotation); err != nil {
			return err
		}
	}

	var out io.Writer = os.Stdout
	if opts.OutputPath != "" {
		f, err := os.Create(opts.OutputPath)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("Replaying "+filepath.Base(opts.InputPath)),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
	)

	start := time.Now()
	var (
		frameIndex int
		indexMu    sync.Mutex
	)
	onFrame := func(index int) {
		indexMu.Lock()
		frameIndex = index
		indexMu.Unlock()
		bar.Add(1)
	}

	camera, closeSource, err := replaySource(opts, pipelineCfg.Rotation, start, onFrame)
	if err != nil {
		return err
	}
	defer closeSource()

	sessionOpts := []scan.SessionOption{
		scan.WithDispatcher(inlineDispatcher{}),
		scan.WithLogger(appLog.Component("replay")),
	}
	if !opts.Realtime {
		sessionOpts = append(sessionOpts, scan.WithClock(fixedClock(start)))
	}
	if opts.MotionFile != "" {
		samples, err := capture.LoadSamples(opts.MotionFile)
		if err != nil {
			return fmt.Errorf("failed to load motion samples: %w", err)
		}
		sessionOpts = append(sessionOpts, scan.WithMotion(capture.NewReplayMotion(samples, cfg.Scanner.GetSensorInterval())))
	}

	var encodeMu sync.Mutex
	encoder := json.NewEncoder(out)
	encode := func(v interface{}) {
		encodeMu.Lock()
		defer encodeMu.Unlock()
		encoder.Encode(v)
	}

	var controller *flow.Controller
	stopEvents := func() {}
	if opts.Remote {
		deps, err := newDependencies(cfg, repository.NewMemoryHistory(0), appLog)
		if err != nil {
			return err
		}
		controller = flow.NewController(deps)
		defer controller.Close()

		events, cancel := controller.Subscribe(64)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for e := range events {
				encode(replayEvent{Event: e})
				if settled(e.State) {
					controller.Reset(cmd.Context())
				}
			}
		}()
		stopEvents = func() {
			cancel()
			<-done
		}
		defer stopEvents()
	}

	counts := map[scan.OutcomeKind]int{}
	observer := scan.ObserverFunc(func(o scan.Outcome) {
		indexMu.Lock()
		index := frameIndex
		indexMu.Unlock()

		counts[o.Kind]++
		encode(replayLine{
			Frame:   index,
			Offset:  o.At.Sub(start).Round(time.Millisecond).String(),
			Kind:    o.Kind,
			Payload: o.Payload,
			Codes:   o.Codes,
		})
		if controller != nil {
			controller.OnScanOutcome(o)
		}
	})

	session := scan.NewSession(pipelineCfg, scan.NewZXingDetector(), camera, observer, sessionOpts...)
	if err := session.Run(cmd.Context()); err != nil {
		return err
	}
	stopEvents()
	bar.Finish()

	fmt.Fprintf(os.Stderr, "\n%d frames: %d QR, %d barcode, %d multiple, %d sent to recognition\n",
		frameIndex,
		counts[scan.OutcomeQRCode],
		counts[scan.OutcomeBarcode],
		counts[scan.OutcomeMultipleCodes],
		counts[scan.OutcomeNeedsRemoteClassification],
	)
	return nil
}

// replaySource reads .mjpeg files directly and anything else through ffmpeg
func replaySource(opts replayOptions, rotation scan.Rotation, start time.Time, onFrame func(int)) (scan.FrameSource, func(), error) {
	var clock scan.Clock = scan.SystemClock{}
	fps := opts.FPS
	if !opts.Realtime {
		clock = &frameClock{next: start, step: time.Duration(float64(time.Second) / opts.FPS)}
		fps = 0
	}

	switch strings.ToLower(filepath.Ext(opts.InputPath)) {
	case ".mjpeg", ".mjpg":
		f, err := os.Open(opts.InputPath)
		if err != nil {
			return nil, nil, err
		}
		return &capture.JPEGStream{
			Reader:   f,
			FPS:      fps,
			Rotation: rotation,
			Clock:    clock,
			OnFrame:  onFrame,
		}, func() { f.Close() }, nil
	default:
		camera := &capture.FFmpegCamera{Input: opts.InputPath, FPS: opts.FPS, Rotation: rotation}
		return &ffmpegReplay{camera: camera, clock: clock, onFrame: onFrame}, func() {}, nil
	}
}

// ffmpegReplay restamps ffmpeg frames with the replay clock
type ffmpegReplay struct {
	camera  *capture.FFmpegCamera
	clock   scan.Clock
	onFrame func(int)
}

func (r *ffmpegReplay) Frames(ctx context.Context) (<-chan scan.Frame, error) {
	in, err := r.camera.Frames(ctx)
	if err != nil {
		return nil, err
	}

	out := make(chan scan.Frame)
	go func() {
		defer close(out)
		index := 0
		for f := range in {
			index++
			r.onFrame(index)
			f.CapturedAt = r.clock.Now()
			select {
			case <-ctx.Done():
				return
			case out <- f:
			}
		}
	}()
	return out, nil
}
