package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go-alias-scanner/internal/flow"
	"go-alias-scanner/internal/logger"
	"go-alias-scanner/internal/models"
	"go-alias-scanner/internal/remote"
	"go-alias-scanner/internal/repository"
	"go-alias-scanner/internal/scan"
	"go-alias-scanner/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingFrames struct {
	mu     sync.Mutex
	frames []scan.Frame
}

func (r *recordingFrames) Submit(f scan.Frame) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
	return true
}

type recordingMotion struct {
	samples []scan.Sample
}

func (r *recordingMotion) Submit(s scan.Sample) bool {
	r.samples = append(r.samples, s)
	return false
}

type stubClassifier struct{}

func (stubClassifier) Classify(ctx context.Context, img image.Image) (remote.Classification, error) {
	return remote.Classification{Raw: "pay.me.now", Alias: "pay.me.now", Found: true}, nil
}

type stubValidator struct{}

func (stubValidator) Validate(ctx context.Context, alias string) (*remote.AliasInfo, error) {
	return &remote.AliasInfo{Identifier: alias, Name: "Ana Gomez", Bank: "Banco Uno", CVU: "0000003100012345678901"}, nil
}

type stubTransfers struct {
	err error
}

func (s stubTransfers) Execute(ctx context.Context, req remote.TransferRequest) (*remote.TransferResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &remote.TransferResponse{AuthorizationID: "auth-1", TransactionID: "tx-1"}, nil
}

type testAPI struct {
	router     *gin.Engine
	controller *flow.Controller
	history    *repository.MemoryHistory
	frames     *recordingFrames
	motion     *recordingMotion
}

func newTestAPI(t *testing.T, transfers flow.TransferExecutor) *testAPI {
	t.Helper()

	log := logger.New(io.Discard, logger.LoggerConfig{Level: logger.ERROR})
	history := repository.NewMemoryHistory(0)
	hash, err := services.HashPIN("2468")
	require.NoError(t, err)

	controller := flow.NewController(flow.Dependencies{
		Classifier: stubClassifier{},
		Validator:  stubValidator{},
		Transfers:  transfers,
		Pins:       services.NewPinVerifier("", hash),
		History:    history,
		Logger:     log,
	})
	t.Cleanup(controller.Close)

	api := &testAPI{
		router:     gin.New(),
		controller: controller,
		history:    history,
		frames:     &recordingFrames{},
		motion:     &recordingMotion{},
	}

	scanHandler := NewScanHandler(controller, api.frames, api.motion, scan.Rotate90, log)
	transferHandler := NewTransferHandler(controller, history, log)
	codeHandler := NewCodeHandler(services.NewCodeService())

	api.router.POST("/api/scan/frames", scanHandler.SubmitFrame)
	api.router.POST("/api/scan/motion", scanHandler.SubmitMotion)
	api.router.GET("/api/scan/state", scanHandler.State)
	api.router.POST("/api/scan/reset", scanHandler.Reset)
	api.router.POST("/api/scan/select", scanHandler.Select)
	api.router.GET("/api/scan/events", scanHandler.Events)
	api.router.POST("/api/transfers", transferHandler.Create)
	api.router.GET("/api/transfers", transferHandler.List)
	api.router.GET("/api/transfers/:id", transferHandler.Get)
	api.router.GET("/api/transfers/:id/receipt", transferHandler.Receipt)
	api.router.GET("/api/scans", transferHandler.ListScans)
	api.router.GET("/api/codes/qr", codeHandler.GenerateQR)
	api.router.GET("/api/codes/barcode", codeHandler.GenerateBarcode)
	return api
}

func (a *testAPI) do(method, path string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func (a *testAPI) doJSON(method, path string, payload interface{}) *httptest.ResponseRecorder {
	data, _ := json.Marshal(payload)
	return a.do(method, path, bytes.NewReader(data), "application/json")
}

// resolve drives the flow to a validated alias
func (a *testAPI) resolve(t *testing.T) {
	t.Helper()
	events, cancel := a.controller.Subscribe(16)
	defer cancel()

	a.controller.OnScanOutcome(scan.NeedsRemoteClassification(image.NewRGBA(image.Rect(0, 0, 8, 8)), time.Now()))

	timeout := time.After(2 * time.Second)
	for {
		select {
		case e := <-events:
			if e.State == flow.StateAliasResolved {
				return
			}
		case <-timeout:
			t.Fatal("alias never resolved")
		}
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	code, _ := body["error"].(string)
	return code
}

func jpegBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	img.Set(3, 3, color.White)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestSubmitFrame(t *testing.T) {
	api := newTestAPI(t, stubTransfers{})
	frame := jpegBytes(t)

	w := api.do(http.MethodPost, "/api/scan/frames", bytes.NewReader(frame), "image/jpeg")
	require.Equal(t, http.StatusAccepted, w.Code)

	w = api.do(http.MethodPost, "/api/scan/frames?rotation=180", bytes.NewReader(frame), "image/jpeg")
	require.Equal(t, http.StatusAccepted, w.Code)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("frame", "frame.jpg")
	require.NoError(t, err)
	_, _ = part.Write(frame)
	require.NoError(t, mw.Close())
	w = api.do(http.MethodPost, "/api/scan/frames", &body, mw.FormDataContentType())
	require.Equal(t, http.StatusAccepted, w.Code)

	require.Len(t, api.frames.frames, 3)
	assert.Equal(t, scan.Rotate90, api.frames.frames[0].Rotation)
	assert.Equal(t, scan.Rotate180, api.frames.frames[1].Rotation)
	assert.Equal(t, 32, api.frames.frames[2].Image.Bounds().Dx())
}

func TestSubmitFrameRejects(t *testing.T) {
	api := newTestAPI(t, stubTransfers{})

	tests := []struct {
		name string
		path string
		body []byte
		code string
	}{
		{"empty body", "/api/scan/frames", nil, "INVALID_FRAME"},
		{"not an image", "/api/scan/frames", []byte("hello"), "INVALID_FRAME"},
		{"bad rotation", "/api/scan/frames?rotation=45", jpegBytes(t), "INVALID_ROTATION"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := api.do(http.MethodPost, tt.path, bytes.NewReader(tt.body), "image/jpeg")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
	assert.Empty(t, api.frames.frames)
}

func TestSubmitMotion(t *testing.T) {
	api := newTestAPI(t, stubTransfers{})

	w := api.doJSON(http.MethodPost, "/api/scan/motion", MotionRequest{X: 0.1, Y: -0.2, Z: 0.98})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.JSONEq(t, `{"accepted":false}`, w.Body.String())
	assert.Equal(t, []scan.Sample{{X: 0.1, Y: -0.2, Z: 0.98}}, api.motion.samples)

	w = api.do(http.MethodPost, "/api/scan/motion", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPushDisabled(t *testing.T) {
	log := logger.New(io.Discard, logger.LoggerConfig{Level: logger.ERROR})
	controller := flow.NewController(flow.Dependencies{Logger: log})
	defer controller.Close()

	h := NewScanHandler(controller, nil, nil, scan.RotateNone, log)
	router := gin.New()
	router.POST("/frames", h.SubmitFrame)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/frames", bytes.NewReader(jpegBytes(t))))
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStateResetAndSelect(t *testing.T) {
	api := newTestAPI(t, stubTransfers{})

	w := api.do(http.MethodGet, "/api/scan/state", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var event flow.Event
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &event))
	assert.Equal(t, flow.StateScanning, event.State)

	w = api.doJSON(http.MethodPost, "/api/scan/select", SelectRequest{ID: "not-a-uuid"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", errorCode(t, w))

	w = api.doJSON(http.MethodPost, "/api/scan/select", SelectRequest{ID: "5f0c1c52-8f57-4c1f-9a9e-6f4d8b1f2a11"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "SELECTION_NOT_PENDING", errorCode(t, w))

	api.resolve(t)
	w = api.do(http.MethodPost, "/api/scan/reset", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, flow.StateScanning, api.controller.Snapshot().State)
}

func TestTransferFlow(t *testing.T) {
	api := newTestAPI(t, stubTransfers{})

	w := api.doJSON(http.MethodPost, "/api/transfers", TransferRequest{Amount: 100, PIN: "2468"})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_VALIDATED_ALIAS", errorCode(t, w))

	api.resolve(t)

	w = api.doJSON(http.MethodPost, "/api/transfers", TransferRequest{Amount: 100, PIN: "0000"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "INVALID_PIN", errorCode(t, w))

	w = api.doJSON(http.MethodPost, "/api/transfers", TransferRequest{Amount: -5, PIN: "2468"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_AMOUNT", errorCode(t, w))

	w = api.doJSON(http.MethodPost, "/api/transfers", TransferRequest{Amount: 1500.5, Category: "comida", PIN: "2468"})
	require.Equal(t, http.StatusCreated, w.Code)
	var record models.TransferRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &record))
	assert.Equal(t, "pay.me.now", record.Alias)
	assert.Equal(t, models.TransferCompleted, record.Status)
	assert.Equal(t, flow.StateTransferred, api.controller.Snapshot().State)

	w = api.do(http.MethodGet, "/api/transfers/"+record.TransferID, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(http.MethodGet, "/api/transfers/"+record.TransferID+"/receipt", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = api.do(http.MethodGet, "/api/transfers/missing/receipt", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = api.do(http.MethodGet, "/api/transfers?status=completed", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"count":1`)

	w = api.do(http.MethodGet, "/api/scans?limit=10", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "needs_remote_classification")
}

func TestTransferUpstreamFailure(t *testing.T) {
	api := newTestAPI(t, stubTransfers{err: &remote.StatusError{Op: "transfer", StatusCode: 500, Body: "boom"}})
	api.resolve(t)

	w := api.doJSON(http.MethodPost, "/api/transfers", TransferRequest{Amount: 10, PIN: "2468"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "UPSTREAM_ERROR", errorCode(t, w))

	list, err := api.history.ListTransfers(context.Background(), models.FilterParams{Status: models.TransferFailed})
	require.NoError(t, err)
	require.Len(t, list, 1)

	w = api.do(http.MethodGet, "/api/transfers/"+list[0].TransferID+"/receipt", nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestCodeGeneration(t *testing.T) {
	api := newTestAPI(t, stubTransfers{})

	tests := []struct {
		path   string
		status int
	}{
		{"/api/codes/qr?data=pay.me.now&size=128", http.StatusOK},
		{"/api/codes/qr", http.StatusBadRequest},
		{"/api/codes/barcode?data=7790001000010", http.StatusOK},
		{"/api/codes/barcode", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := api.do(http.MethodGet, tt.path, nil, "")
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
				assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))
			}
		})
	}
}

func TestEventStream(t *testing.T) {
	api := newTestAPI(t, stubTransfers{})
	server := httptest.NewServer(api.router)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/scan/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var first flow.Event
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, flow.StateScanning, first.State)

	api.controller.OnScanOutcome(scan.QRCode("https://example.com/pay", time.Now()))

	var next flow.Event
	require.NoError(t, conn.ReadJSON(&next))
	assert.Equal(t, flow.StateQRFound, next.State)
	assert.Equal(t, "https://example.com/pay", next.Payload)
}
