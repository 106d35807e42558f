package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go-alias-scanner/internal/flow"
	"go-alias-scanner/internal/logger"
	"go-alias-scanner/internal/scan"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	eventBuffer    = 16
	maxClientFrame = 512
)

// FrameSink accepts camera frames pushed by a client
type FrameSink interface {
	Submit(f scan.Frame) bool
}

// MotionSink accepts accelerometer samples pushed by a client
type MotionSink interface {
	Submit(s scan.Sample) bool
}

type ScanHandler struct {
	flow     *flow.Controller
	frames   FrameSink
	motion   MotionSink
	rotation scan.Rotation
	logger   *logger.StructuredLogger
	upgrader websocket.Upgrader
}

// NewScanHandler creates the scan API. frames and motion may be nil when the
// session reads from a local camera.
func NewScanHandler(controller *flow.Controller, frames FrameSink, motion MotionSink, rotation scan.Rotation, log *logger.StructuredLogger) *ScanHandler {
	return &ScanHandler{
		flow:     controller,
		frames:   frames,
		motion:   motion,
		rotation: rotation,
		logger:   log.Component("scan-api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// SubmitFrame accepts a JPEG or PNG as the raw body or as the multipart
// field "frame"
func (h *ScanHandler) SubmitFrame(c *gin.Context) {
	if h.frames == nil {
		respondError(c, http.StatusConflict, "PUSH_DISABLED", "The session reads frames from a local camera")
		return
	}

	rotation := h.rotation
	if raw := c.Query("rotation"); raw != "" {
		degrees, err := strconv.Atoi(raw)
		if err == nil {
			rotation, err = scan.ParseRotation(degrees)
		}
		if err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_ROTATION", "Rotation must be 0, 90, 180 or 270")
			return
		}
	}

	data, err := readFrameBody(c)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_FRAME", err.Error())
		return
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_FRAME", fmt.Sprintf("undecodable image: %v", err))
		return
	}

	accepted := h.frames.Submit(scan.Frame{Image: img, CapturedAt: time.Now(), Rotation: rotation})
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

func readFrameBody(c *gin.Context) ([]byte, error) {
	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("frame")
		if err != nil {
			return nil, errors.New("multipart field frame is required")
		}
		file, err := header.Open()
		if err != nil {
			return nil, err
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty frame")
	}
	return data, nil
}

// SubmitMotion accepts one accelerometer sample
func (h *ScanHandler) SubmitMotion(c *gin.Context) {
	if h.motion == nil {
		respondError(c, http.StatusConflict, "PUSH_DISABLED", "Motion is not accepted from clients")
		return
	}

	var req MotionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	accepted := h.motion.Submit(scan.Sample{X: req.X, Y: req.Y, Z: req.Z})
	c.JSON(http.StatusAccepted, gin.H{"accepted": accepted})
}

// State returns the current flow event
func (h *ScanHandler) State(c *gin.Context) {
	c.JSON(http.StatusOK, h.flow.Snapshot())
}

// Reset returns the flow to scanning
func (h *ScanHandler) Reset(c *gin.Context) {
	if err := h.flow.Reset(c.Request.Context()); err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.flow.Snapshot())
}

// Select picks one of several detected codes by id
func (h *ScanHandler) Select(c *gin.Context) {
	var req SelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_ID", "id must be a UUID")
		return
	}

	event, err := h.flow.Select(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err)
		return
	}
	c.JSON(http.StatusOK, event)
}

// Events streams flow events over a websocket
func (h *ScanHandler) Events(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	events, cancel := h.flow.Subscribe(eventBuffer)
	done := make(chan struct{})

	h.logger.Info("Event stream opened", map[string]interface{}{"remote": c.ClientIP()})

	go h.readPump(conn, done)
	h.writePump(conn, events, done)

	cancel()
	conn.Close()
	h.logger.Info("Event stream closed", map[string]interface{}{"remote": c.ClientIP()})
}

// readPump discards client messages and signals done when the peer goes away
func (h *ScanHandler) readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxClientFrame)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("WebSocket read error", map[string]interface{}{"error": err.Error()})
			}
			return
		}
	}
}

func (h *ScanHandler) writePump(conn *websocket.Conn, events <-chan flow.Event, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
