package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"course-progress-service/internal/domain"
	"github.com/gorilla/websocket"
)

func TestWebSocketNotificationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, _ = env.store.CreateSubmission(ctx, domain.QuizSubmission{ID: "s1", LearnerID: "u1", CourseID: "course-1", LessonID: "final", SubmittedAt: time.Now()})

	u := "ws" + env.server.URL[len("http"):] + "/ws/notifications?learnerId=u1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Expect history event first.
	msgType, _ := readNext(conn, t, "history")
	if msgType != "history" {
		t.Fatalf("expected history, got %s", msgType)
	}

	if code := env.do(t, http.MethodPost, "/instructor/submissions/s1/check", nil, nil); code != http.StatusOK {
		t.Fatalf("check: status %d", code)
	}

	_, payload := readNext(conn, t, "notification")
	var note map[string]any
	if m, ok := payload.(map[string]any); ok {
		note = m
	}
	if note["submissionId"] != "s1" || note["kind"] != string(domain.NotificationSubmissionChecked) {
		t.Fatalf("unexpected notification payload %+v", payload)
	}

	// A repeated check must not notify again; ask for history and expect exactly one entry.
	env.do(t, http.MethodPost, "/instructor/submissions/s1/check", nil, nil)
	if err := conn.WriteJSON(map[string]string{"type": "history"}); err != nil {
		t.Fatalf("write history request: %v", err)
	}
	_, payload = readNext(conn, t, "history")
	if items, ok := payload.([]any); !ok || len(items) != 1 {
		t.Fatalf("expected one notification in history, got %+v", payload)
	}
}

func TestWebSocketRequiresLearner(t *testing.T) {
	env := newTestEnv(t)
	resp, err := http.Get(env.server.URL + "/ws/notifications")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestEnqueueStopsWhenWriterIsGone(t *testing.T) {
	send := make(chan outboundMessage[any], 1)
	writerDone := make(chan struct{})
	msg := outboundMessage[any]{Type: "history"}

	if !enqueue(send, writerDone, msg) {
		t.Fatalf("expected first message buffered")
	}
	close(writerDone)

	result := make(chan bool, 1)
	go func() { result <- enqueue(send, writerDone, msg) }()
	select {
	case ok := <-result:
		if ok {
			t.Fatalf("expected enqueue to report the writer gone")
		}
	case <-time.After(time.Second):
		t.Fatalf("enqueue blocked on a full channel after the writer exited")
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, any) {
	t.Helper()
	var msg struct {
		Type    string `json:"type"`
		Payload any    `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}
