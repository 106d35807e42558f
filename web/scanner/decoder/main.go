//go:build js && wasm

// Command decoder runs the scan pipeline inside the browser. The page feeds
// canvas frames and devicemotion samples and receives outcomes synchronously.
package main

import (
	"syscall/js"
	"time"

	"go-alias-scanner/internal/scan"

	"github.com/google/uuid"
)

const jpegQuality = 60

var (
	cfg       scan.Config
	pipeline  *scan.Pipeline
	stability *scan.StabilityTracker
)

func main() {
	js.Global().Set("aliasScanner", js.ValueOf(map[string]interface{}{
		"start":  js.FuncOf(start),
		"frame":  js.FuncOf(frame),
		"motion": js.FuncOf(motion),
		"reset":  js.FuncOf(reset),
		"select": js.FuncOf(selectCode),
		"stats":  js.FuncOf(stats),
	}))

	// Keep the module alive for the page
	select {}
}

func failure(err error) interface{} {
	return map[string]interface{}{"success": false, "error": err.Error()}
}

// start({rotation}) creates a fresh pipeline
func start(this js.Value, args []js.Value) interface{} {
	next := scan.DefaultConfig()
	if len(args) > 0 && args[0].Type() == js.TypeObject {
		if r := args[0].Get("rotation"); r.Type() == js.TypeNumber {
			rotation, err := scan.ParseRotation(r.Int())
			if err != nil {
				return failure(err)
			}
			next.Rotation = rotation
		}
	}

	cfg = next
	stability = scan.NewStabilityTracker(cfg.StabilityThreshold)
	pipeline = scan.NewPipeline(cfg, time.Now(), scan.NewZXingDetector(), stability, nil)
	return map[string]interface{}{"success": true}
}

// frame(rgba Uint8ClampedArray, width, height) processes one camera frame
func frame(this js.Value, args []js.Value) interface{} {
	if pipeline == nil {
		start(this, nil)
	}
	if len(args) < 3 {
		return map[string]interface{}{"success": false, "error": "need frameData, width, height"}
	}

	data := make([]byte, args[0].Get("length").Int())
	js.CopyBytesToGo(data, args[0])

	img, err := rgbaToImage(data, args[1].Int(), args[2].Int())
	if err != nil {
		return failure(err)
	}

	outcome, published := pipeline.Process(cfg.NewFrame(img, time.Now()))
	if !published {
		return map[string]interface{}{"success": true}
	}
	return map[string]interface{}{"success": true, "outcome": outcomeToJS(outcome, jpegQuality)}
}

// motion(x, y, z) records one accelerometer sample in g
func motion(this js.Value, args []js.Value) interface{} {
	if stability == nil || len(args) < 3 {
		return nil
	}
	stability.Observe(scan.Sample{X: args[0].Float(), Y: args[1].Float(), Z: args[2].Float()})
	return nil
}

func reset(this js.Value, args []js.Value) interface{} {
	if pipeline != nil {
		pipeline.ResetDebounce()
	}
	return nil
}

// select(id) resolves a pending multi-code choice
func selectCode(this js.Value, args []js.Value) interface{} {
	if pipeline == nil || len(args) < 1 {
		return failure(scan.ErrSelectionNotPending)
	}
	id, err := uuid.Parse(args[0].String())
	if err != nil {
		return failure(err)
	}
	outcome, err := pipeline.ResolveSelection(id, time.Now())
	if err != nil {
		return failure(err)
	}
	return map[string]interface{}{"success": true, "outcome": outcomeToJS(outcome, jpegQuality)}
}

func stats(this js.Value, args []js.Value) interface{} {
	if pipeline == nil {
		return nil
	}
	s := pipeline.Stats()
	return map[string]interface{}{
		"received":      s.Received,
		"admitted":      s.Admitted,
		"withCodes":     s.WithCodes,
		"suppressed":    s.Suppressed,
		"ocrDispatches": s.OCRDispatches,
		"published":     s.Published,
		"debounce":      s.Debounce,
	}
}
