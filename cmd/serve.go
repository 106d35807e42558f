package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-alias-scanner/internal/capture"
	"go-alias-scanner/internal/flow"
	"go-alias-scanner/internal/handlers"
	"go-alias-scanner/internal/monitoring"
	"go-alias-scanner/internal/routes"
	"go-alias-scanner/internal/scan"
	"go-alias-scanner/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

type serveOptions struct {
	Camera      string
	CameraFPS   float64
	MotionFile  string
	MotionLoop  bool
	ShutdownTTL string
}

var serveOpts serveOptions

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the scan session behind the HTTP API",
	Long: `Runs one scan session and serves its API. Frames come from a local camera
through ffmpeg when --camera is set and are pushed by a client to
POST /api/scan/frames otherwise.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context(), serveOpts)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveOpts.Camera, "camera", "", "Camera device or video for ffmpeg (e.g. /dev/video0); empty accepts pushed frames")
	serveCmd.Flags().Float64Var(&serveOpts.CameraFPS, "fps", 30, "Capture rate requested from ffmpeg")
	serveCmd.Flags().StringVar(&serveOpts.MotionFile, "motion", "", "CSV of x,y,z accelerometer samples to replay instead of pushed motion")
	serveCmd.Flags().BoolVar(&serveOpts.MotionLoop, "motion-loop", true, "Restart the motion replay when it ends")
	serveCmd.Flags().StringVar(&serveOpts.ShutdownTTL, "shutdown-timeout", "10s", "Grace period for in-flight requests on shutdown")

	rootCmd.AddCommand(serveCmd)
}

func runServe(ctx context.Context, opts serveOptions) error {
	pipelineCfg, err := cfg.Scanner.Pipeline()
	if err != nil {
		return err
	}
	shutdownTTL, err := time.ParseDuration(opts.ShutdownTTL)
	if err != nil {
		return fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	history, checks, closeHistory, err := openHistory(cfg.Database, appLog)
	if err != nil {
		return err
	}
	defer closeHistory()

	deps, err := newDependencies(cfg, history, appLog)
	if err != nil {
		return err
	}
	controller := flow.NewController(deps)
	defer controller.Close()

	// Frame source
	var (
		camera scan.FrameSource
		frames handlers.FrameSink
	)
	if opts.Camera != "" {
		ffmpeg := capture.NewFFmpegCamera(opts.Camera)
		ffmpeg.FPS = opts.CameraFPS
		ffmpeg.Rotation = pipelineCfg.Rotation
		camera = ffmpeg
	} else {
		push := capture.NewPushSource(cfg.Server.FrameQueue)
		camera, frames = push, push
	}

	// Motion source
	var (
		motionSource scan.MotionSource
		motion       handlers.MotionSink
	)
	if opts.MotionFile != "" {
		samples, err := capture.LoadSamples(opts.MotionFile)
		if err != nil {
			return fmt.Errorf("failed to load motion samples: %w", err)
		}
		replay := capture.NewReplayMotion(samples, cfg.Scanner.GetSensorInterval())
		replay.Loop = opts.MotionLoop
		motionSource = replay
	} else {
		push := capture.NewPushMotion(cfg.Server.FrameQueue * 8)
		motionSource, motion = push, push
	}

	detector := scan.NewZXingDetector()
	session := scan.NewSession(pipelineCfg, detector, camera, controller,
		scan.WithMotion(motionSource),
		scan.WithLogger(appLog.Component("scanner")),
	)
	controller.Attach(session)

	errorTracker := monitoring.NewErrorTracker(200)
	errorTracker.AddAlertRule(monitoring.AlertRule{Severity: monitoring.HIGH, Threshold: 5})
	errorTracker.AddAlertChannel(monitoring.AlertFunc(func(d monitoring.ErrorDetails, rule monitoring.AlertRule) {
		appLog.LogSecurityEvent("Repeated failure", "high", map[string]interface{}{
			"fingerprint": d.Fingerprint,
			"operation":   d.Operation,
			"count":       d.Count,
			"error":       d.Error,
		})
	}))

	// HTTP
	gin.SetMode(cfg.Server.Mode)
	router := gin.New()
	routes.SetupRoutes(router, routes.Handlers{
		Scan:      handlers.NewScanHandler(controller, frames, motion, pipelineCfg.Rotation, appLog),
		Transfers: handlers.NewTransferHandler(controller, history, appLog),
		Codes:     handlers.NewCodeHandler(services.NewCodeService()),
		Fallback:  routes.NewScanFallbackHandler(detector, cfg.Server.EnableDecodeFallback),
		Errors:    errorTracker,
	}, appLog, routes.Options{
		MaxUploadBytes:  cfg.Server.MaxUploadBytes,
		DecodeRateLimit: cfg.Server.DecodeRateLimit,
		HealthChecks:    checks,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionErr := make(chan error, 1)
	go func() {
		sessionErr <- session.Run(ctx)
	}()

	serverErr := make(chan error, 1)
	go func() {
		appLog.Info("HTTP server listening", map[string]interface{}{
			"address": srv.Addr,
			"camera":  opts.Camera,
			"decode":  cfg.Server.EnableDecodeFallback,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		appLog.Info("Shutting down")
	case err := <-sessionErr:
		if err != nil {
			runErr = fmt.Errorf("scan session failed: %w", err)
		} else {
			appLog.Info("Camera stream ended")
		}
	case err, ok := <-serverErr:
		if ok {
			runErr = fmt.Errorf("HTTP server failed: %w", err)
		}
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTTL)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("HTTP shutdown failed", err)
	}
	cancel()

	if runErr != nil {
		appLog.Error("Server stopped with error", runErr)
	}
	return runErr
}
