package http

import (
	"fmt"
	"net/http"

	"course-progress-service/internal/app"
	"course-progress-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

// InstructorHandler exposes submission review and feedback.
type InstructorHandler struct {
	feedback *app.FeedbackService
}

func NewInstructorHandler(feedback *app.FeedbackService) *InstructorHandler {
	return &InstructorHandler{feedback: feedback}
}

// Routes mounts under /instructor.
func (h *InstructorHandler) Routes(r chi.Router) {
	r.Get("/submissions", h.ListSubmissions)
	r.Get("/submissions/{submissionID}/answers", h.SubmissionAnswers)
	r.Post("/submissions/{submissionID}/check", h.MarkChecked)
	r.Patch("/answers/{answerID}/feedback", h.AnswerFeedback)
	r.Patch("/learners/{learnerID}/lessons/{lessonID}/feedback", h.QuizFeedback)
}

type answerFeedbackReq struct {
	Text     *string `json:"text"`
	AudioURL *string `json:"audioUrl"`
}

type quizFeedbackReq struct {
	Text string `json:"text"`
}

// GET /instructor/submissions?status=ungraded
func (h *InstructorHandler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	if status := r.URL.Query().Get("status"); status != "" && status != "ungraded" {
		writeJSON(w, http.StatusBadRequest, errorPayload{Message: fmt.Sprintf("unsupported status %q", status)})
		return
	}
	subs, err := h.feedback.ListUngraded(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if subs == nil {
		subs = []domain.QuizSubmission{}
	}
	writeJSON(w, http.StatusOK, subs)
}

func (h *InstructorHandler) SubmissionAnswers(w http.ResponseWriter, r *http.Request) {
	answers, err := h.feedback.SubmissionAnswers(r.Context(), chi.URLParam(r, "submissionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if answers == nil {
		answers = []domain.UserAnswer{}
	}
	writeJSON(w, http.StatusOK, answers)
}

func (h *InstructorHandler) AnswerFeedback(w http.ResponseWriter, r *http.Request) {
	var req answerFeedbackReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	answer, err := h.feedback.AttachFeedback(r.Context(), chi.URLParam(r, "answerID"), req.Text, req.AudioURL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (h *InstructorHandler) QuizFeedback(w http.ResponseWriter, r *http.Request) {
	var req quizFeedbackReq
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sub, err := h.feedback.AttachQuizFeedback(r.Context(), chi.URLParam(r, "learnerID"), chi.URLParam(r, "lessonID"), req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

func (h *InstructorHandler) MarkChecked(w http.ResponseWriter, r *http.Request) {
	sub, err := h.feedback.MarkChecked(r.Context(), chi.URLParam(r, "submissionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}
