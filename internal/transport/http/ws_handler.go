package http

import (
	"context"
	"errors"
	"maps"
	"net/http"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"faculty-quiz-service/internal/app"
	"faculty-quiz-service/internal/domain"
)

const writeWait = 10 * time.Second

type WSHandler struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewWSHandler(service *app.QuizService, logger *zap.Logger) *WSHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		log:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type startPayload struct {
	Identity string `json:"identity"`
}

type selectPayload struct {
	QuestionID string `json:"questionId"`
	Option     int    `json:"option"`
}

type advancePayload struct {
	Direction int `json:"direction"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and attaches the connection to the device's quiz controller.
// Commands go in, snapshots come out; several connections may watch the same device.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device")
	if deviceID == "" {
		http.Error(w, "missing device", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()

	// detaching the last connection lets the service drop the controller once it settles
	controller, updates, detach, err := h.service.Attach(ctx, deviceID)
	if err != nil {
		_ = writeMessage(conn, outboundMessage{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer detach()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})
	var commands sync.WaitGroup

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := writeMessage(conn, msg); err != nil {
				h.log.Debug("ws write failed", zap.String("device_id", deviceID), zap.Error(err))
				// keep draining so producers never block on a dead connection
				for range send {
				}
				return
			}
		}
	}()

	emit := func(msg outboundMessage) bool {
		select {
		case send <- msg:
			return true
		case <-closeSignals:
			return false
		}
	}

	go func() {
		defer close(updatesDone)
		var (
			lastResult time.Time
			last       domain.SessionView
			sent       bool
		)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				msg := outboundMessage{Type: "state", Payload: view}
				if sent && view.Timer != nil && onlyTimerChanged(last, view) {
					msg = outboundMessage{Type: "tick", Payload: view.Timer}
				}
				last, sent = view, true
				if !emit(msg) {
					return
				}
				if view.State == domain.StateFinished && view.Result != nil && !view.Result.FinishedAt.Equal(lastResult) {
					lastResult = view.Result.FinishedAt
					if !emit(outboundMessage{Type: "result", Payload: view.Result}) {
						return
					}
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		var inbound inboundMessage
		if err := json.Unmarshal(data, &inbound); err != nil {
			emit(errorMessage("invalid message"))
			continue
		}
		h.dispatch(ctx, controller, inbound, emit, &commands)
	}

	cancelCtx()
	commands.Wait()
	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, c *app.Controller, in inboundMessage, emit func(outboundMessage) bool, commands *sync.WaitGroup) {
	switch in.Type {
	case "start":
		var payload startPayload
		if len(in.Payload) > 0 {
			if err := json.Unmarshal(in.Payload, &payload); err != nil {
				emit(errorMessage("invalid start payload"))
				return
			}
		}
		// loading can take a while; keep reading commands meanwhile
		commands.Add(1)
		go func() {
			defer commands.Done()
			if err := c.Start(ctx, payload.Identity); err != nil && !errors.Is(err, app.ErrControllerClosed) {
				emit(errorMessage(userMessage(err)))
			}
		}()
	case "select":
		var payload selectPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			emit(errorMessage("invalid select payload"))
			return
		}
		c.SelectOption(payload.QuestionID, payload.Option)
	case "advance":
		var payload advancePayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			emit(errorMessage("invalid advance payload"))
			return
		}
		c.Advance(payload.Direction)
	case "submit":
		c.Finish()
	case "leaderboard":
		c.ShowLeaderboard()
	case "home":
		c.Home()
	default:
		emit(errorMessage("unsupported message type"))
	}
}

// onlyTimerChanged reports whether next differs from prev in nothing but the countdown.
func onlyTimerChanged(prev, next domain.SessionView) bool {
	if prev.State != next.State ||
		prev.Identity != next.Identity ||
		prev.Position != next.Position ||
		prev.Total != next.Total ||
		prev.Saving != next.Saving ||
		prev.SaveWarning != next.SaveWarning ||
		prev.Error != next.Error ||
		prev.Result != next.Result ||
		!maps.Equal(prev.Answers, next.Answers) {
		return false
	}
	if (prev.Question == nil) != (next.Question == nil) {
		return false
	}
	return prev.Question == nil || prev.Question.ID == next.Question.ID
}

func errorMessage(message string) outboundMessage {
	return outboundMessage{Type: "error", Payload: errorPayload{Message: message}}
}

func userMessage(err error) string {
	var genErr *domain.GenerationError
	if errors.As(err, &genErr) {
		return genErr.Message()
	}
	return err.Error()
}

func writeMessage(conn *websocket.Conn, msg outboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, data)
}
