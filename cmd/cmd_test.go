package cmd

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go-alias-scanner/internal/config"
	"go-alias-scanner/internal/logger"
	"go-alias-scanner/internal/remote"
	"go-alias-scanner/internal/repository"
	"go-alias-scanner/internal/services"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupGlobals(t *testing.T) {
	t.Helper()
	var err error
	cfg, err = config.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	appLog = logger.New(io.Discard, logger.LoggerConfig{Level: logger.ERROR})
}

func TestNewTokenSource(t *testing.T) {
	tests := []struct {
		name string
		auth config.AuthConfig
		want interface{}
	}{
		{"nothing configured", config.AuthConfig{}, nil},
		{"static token wins", config.AuthConfig{StaticToken: "tok", TokenCommand: []string{"echo"}, URL: "https://id", Username: "u"}, remote.StaticToken("tok")},
		{"token command", config.AuthConfig{TokenCommand: []string{"gcloud", "auth", "print-identity-token"}}, &remote.CommandToken{}},
		{"password grant", config.AuthConfig{URL: "https://id.example.com/oauth/token", Username: "u", Password: "p"}, &remote.PasswordGrant{}},
		{"url without user", config.AuthConfig{URL: "https://id.example.com/oauth/token"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newTokenSource(tt.auth, nil)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			assert.IsType(t, tt.want, got)
		})
	}
}

func TestNewDependencies(t *testing.T) {
	setupGlobals(t)
	history := repository.NewMemoryHistory(0)

	c := *cfg
	c.OCR.URL = ""
	deps, err := newDependencies(&c, history, appLog)
	require.NoError(t, err)
	assert.Nil(t, deps.Classifier)
	assert.Nil(t, deps.Validator)
	assert.Nil(t, deps.Transfers)

	c.OCR.URL = "https://ocr.example.com/v1/chat"
	_, err = newDependencies(&c, history, appLog)
	assert.Error(t, err, "recognition needs credentials")

	c.Auth.StaticToken = "tok"
	c.Alias.BaseURL = "https://api.example.com/v1"
	c.Transfer.Endpoint = "https://api.example.com/v1/transfers"
	deps, err = newDependencies(&c, history, appLog)
	require.NoError(t, err)
	assert.NotNil(t, deps.Classifier)
	assert.NotNil(t, deps.Validator)
	assert.NotNil(t, deps.Transfers)
	assert.Equal(t, "varios", deps.DefaultCategory)
}

func TestOpenHistoryInMemory(t *testing.T) {
	setupGlobals(t)
	history, checks, closeHistory, err := openHistory(config.DatabaseConfig{}, appLog)
	require.NoError(t, err)
	defer closeHistory()

	assert.IsType(t, &repository.MemoryHistory{}, history)
	assert.Empty(t, checks)
}

func TestRunGencode(t *testing.T) {
	dir := t.TempDir()

	qrPath := filepath.Join(dir, "qr.png")
	require.NoError(t, runGencode(gencodeOptions{Kind: "qr", Data: "pay.me.now", Output: qrPath, Size: 128}))
	data, err := os.ReadFile(qrPath)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 128, img.Bounds().Dx())

	barPath := filepath.Join(dir, "bar.png")
	require.NoError(t, runGencode(gencodeOptions{Kind: "barcode", Data: "7790001000010", Output: barPath, Width: 400, Height: 120}))

	assert.Error(t, runGencode(gencodeOptions{Kind: "pdf417", Data: "x", Output: filepath.Join(dir, "x.png")}))
}

func TestFrameClock(t *testing.T) {
	start := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	clock := &frameClock{next: start, step: 100 * time.Millisecond}

	assert.Equal(t, start, clock.Now())
	assert.Equal(t, start.Add(100*time.Millisecond), clock.Now())
	assert.Equal(t, start.Add(200*time.Millisecond), clock.Now())
}

func writeClip(t *testing.T, frame image.Image, count int) string {
	t.Helper()
	var buf bytes.Buffer
	for i := 0; i < count; i++ {
		require.NoError(t, jpeg.Encode(&buf, frame, &jpeg.Options{Quality: 90}))
	}
	path := filepath.Join(t.TempDir(), "clip.mjpeg")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestRunReplay(t *testing.T) {
	setupGlobals(t)

	qr, err := services.NewCodeService().QR("pay.me.now", 320)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(qr))
	require.NoError(t, err)

	output := filepath.Join(t.TempDir(), "outcomes.jsonl")
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	err = runReplay(cmd, replayOptions{
		InputPath:  writeClip(t, img, 60),
		FPS:        30,
		Rotation:   0,
		OutputPath: output,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	require.NotEmpty(t, lines[0])
	for _, line := range lines {
		assert.Contains(t, string(line), `"kind":"qr_code"`)
		assert.Contains(t, string(line), `"payload":"pay.me.now"`)
	}
}

func TestRunReplayRemote(t *testing.T) {
	setupGlobals(t)
	cfg.OCR.URL = ""

	qr, err := services.NewCodeService().QR("pay.me.now", 320)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(qr))
	require.NoError(t, err)

	output := filepath.Join(t.TempDir(), "outcomes.jsonl")
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())

	err = runReplay(cmd, replayOptions{
		InputPath:  writeClip(t, img, 60),
		FPS:        30,
		Rotation:   0,
		Remote:     true,
		OutputPath: output,
	})
	require.NoError(t, err)

	data, err := os.ReadFile(output)
	require.NoError(t, err)

	var outcomes, found int
	for _, line := range bytes.Split(bytes.TrimSpace(data), []byte("\n")) {
		switch {
		case bytes.HasPrefix(line, []byte(`{"frame"`)):
			outcomes++
		case bytes.Contains(line, []byte(`"state":"qr_found"`)):
			found++
			assert.Contains(t, string(line), `"payload":"pay.me.now"`)
		}
	}
	assert.Positive(t, outcomes)
	assert.Positive(t, found)
}

func TestRunReplayRejectsBadFPS(t *testing.T) {
	setupGlobals(t)
	err := runReplay(&cobra.Command{}, replayOptions{InputPath: "clip.mjpeg", FPS: 0})
	assert.Error(t, err)
}
