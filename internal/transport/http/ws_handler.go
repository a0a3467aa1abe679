package http

import (
	"context"
	"log"
	"net/http"

	"course-progress-service/internal/domain"
	"github.com/gorilla/websocket"
)

// NotificationSource is the subscribe side of the notification channel.
type NotificationSource interface {
	Subscribe(ctx context.Context, learnerID string) (<-chan domain.Notification, func(), error)
	Recent(ctx context.Context, learnerID string, limit int) ([]domain.Notification, error)
}

const historySize = 20

type WSHandler struct {
	source   NotificationSource
	upgrader websocket.Upgrader
}

func NewWSHandler(source NotificationSource) *WSHandler {
	return &WSHandler{
		source: source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type string `json:"type"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

// ServeWS upgrades the request and streams the learner's notifications.
// The first message is the recent history; clients may ask for it again with {"type":"history"}.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	learnerID := r.URL.Query().Get("learnerId")
	if learnerID == "" {
		http.Error(w, "missing learnerId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, stop := context.WithCancel(r.Context())
	defer stop()

	updates, cancel, err := h.source.Subscribe(ctx, learnerID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// single writer: gorilla connections do not support concurrent writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				// unblock the reader
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case n, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "notification", Payload: n}:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	open := enqueue(send, writerDone, h.history(ctx, learnerID))
	for open {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "history":
			open = enqueue(send, writerDone, h.history(ctx, learnerID))
		default:
			open = enqueue(send, writerDone, outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}})
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// enqueue hands msg to the writer. It reports false once the writer has gone.
func enqueue(send chan<- outboundMessage[any], writerDone <-chan struct{}, msg outboundMessage[any]) bool {
	select {
	case send <- msg:
		return true
	case <-writerDone:
		return false
	}
}

func (h *WSHandler) history(ctx context.Context, learnerID string) outboundMessage[any] {
	recent, err := h.source.Recent(ctx, learnerID, historySize)
	if err != nil {
		log.Printf("ws history for %s: %v", learnerID, err)
		return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "history unavailable"}}
	}
	if recent == nil {
		recent = []domain.Notification{}
	}
	return outboundMessage[any]{Type: "history", Payload: recent}
}
