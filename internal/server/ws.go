// Package server is the WebSocket transport around the document core. Each
// connection gets a write pump fed by two producers: the per-document
// update stream relayed from the notifier, and direct acknowledgments from
// the read loop. Committed updates reach the submitter through the same
// fan-out as everyone else; only rejections are answered directly.
package server

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"collabtext/internal/document"
	"collabtext/internal/notify"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler serves the collaborative editing endpoints.
type Handler struct {
	registry      *document.Registry
	sub           notify.Subscriber
	submitTimeout time.Duration
}

func NewHandler(registry *document.Registry, sub notify.Subscriber, submitTimeout time.Duration) *Handler {
	if submitTimeout <= 0 {
		submitTimeout = 10 * time.Second
	}
	return &Handler{registry: registry, sub: sub, submitTimeout: submitTimeout}
}

// Router wires the HTTP routes.
func (h *Handler) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws/{docID}", h.serveWS)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return r
}

func (h *Handler) serveWS(w http.ResponseWriter, r *http.Request) {
	docID := mux.Vars(r)["docID"]
	log.Printf("new connection for document: %s", docID)

	coord, err := h.registry.Get(r.Context(), docID)
	if err != nil {
		http.Error(w, "document unavailable", http.StatusServiceUnavailable)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("upgrade failed for %s: %v", docID, err)
		return
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	send := make(chan []byte, 256)
	go writePump(ctx, ws, send)

	// Initial state so the client has a baseline version to edit against.
	st, err := coord.GetState(ctx)
	if err != nil {
		log.Printf("state for %s: %v", docID, err)
		return
	}
	initial, _ := json.Marshal(notify.Update{
		Type:       notify.TypeDocumentUpdate,
		DocID:      docID,
		NewContent: st.Content,
		NewVersion: st.Version,
	})
	send <- initial

	// Relay committed updates from the fan-out channel to this client.
	updates, unsubscribe := h.sub.Subscribe(ctx, docID)
	defer unsubscribe()
	go func() {
		for payload := range updates {
			select {
			case send <- payload:
			case <-ctx.Done():
				return
			}
		}
	}()

	h.readLoop(ctx, ws, coord, docID, send)
}

// readLoop decodes client edits and submits them. A disconnect mid-submit
// does not cancel the command; only the wait is bounded.
func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, coord *document.Coordinator, docID string, send chan<- []byte) {
	for {
		_, raw, err := ws.ReadMessage()
		if err != nil {
			log.Printf("client disconnected from %s: %v", docID, err)
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.nack(send, msg.RequestID, codeValidation, "malformed message: "+err.Error())
			continue
		}
		if msg.RequestID == "" {
			msg.RequestID = uuid.NewString()
		}
		op, err := msg.Operation()
		if err != nil {
			h.nack(send, msg.RequestID, codeValidation, err.Error())
			continue
		}

		submitCtx, cancel := context.WithTimeout(ctx, h.submitTimeout)
		_, err = coord.Submit(submitCtx, document.SubmitRequest{
			Op:            op,
			ClientID:      msg.ClientID,
			ClientVersion: msg.ClientVersion,
			RequestID:     msg.RequestID,
		})
		cancel()
		if err != nil {
			// Timeout means unknown outcome, not rejection; the code says so.
			h.nack(send, msg.RequestID, errorCode(err), err.Error())
			continue
		}
		// The commit reaches this client through the fan-out relay.
	}
}

func (h *Handler) nack(send chan<- []byte, requestID, code, message string) {
	payload, _ := json.Marshal(ErrorMessage{
		Type:      "error",
		RequestID: requestID,
		Code:      code,
		Message:   message,
	})
	select {
	case send <- payload:
	default:
		log.Printf("dropping nack %s: send buffer full", requestID)
	}
}

func writePump(ctx context.Context, ws *websocket.Conn, send <-chan []byte) {
	for {
		select {
		case payload := <-send:
			if err := ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				log.Printf("write to client: %v", err)
				return
			}
		case <-ctx.Done():
			ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
