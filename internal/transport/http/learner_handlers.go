package http

import (
	"fmt"
	"net/http"
	"strconv"

	"course-progress-service/internal/app"
	"course-progress-service/internal/domain"
	"github.com/go-chi/chi/v5"
)

// LearnerHandler exposes the learner-facing progression and quiz use cases.
type LearnerHandler struct {
	progression *app.ProgressionService
	quizzes     *app.QuizService
	progress    *app.ProgressCache
}

func NewLearnerHandler(progression *app.ProgressionService, quizzes *app.QuizService, progress *app.ProgressCache) *LearnerHandler {
	return &LearnerHandler{progression: progression, quizzes: quizzes, progress: progress}
}

// Routes mounts under /learners/{learnerID}.
func (h *LearnerHandler) Routes(r chi.Router) {
	r.Post("/session", h.StartSession)
	r.Delete("/session", h.EndSession)
	r.Route("/courses/{courseID}", func(r chi.Router) {
		r.Post("/enroll", h.Enroll)
		r.Route("/lessons/{lessonID}", func(r chi.Router) {
			r.Get("/", h.OpenLesson)
			r.Get("/questions/{index}", h.ViewQuestion)
			r.Post("/questions/{questionID}/answer", h.AnswerPractice)
			r.Post("/complete", h.Complete)
			r.Get("/quiz", h.ResumeQuiz)
			r.Put("/quiz/answers/{questionID}", h.BufferAnswer)
			r.Post("/quiz/submit", h.SubmitQuiz)
		})
	})
}

// POST /learners/{learnerID}/session
func (h *LearnerHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	learnerID := chi.URLParam(r, "learnerID")
	if err := h.progress.Seed(r.Context(), learnerID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DELETE /learners/{learnerID}/session
func (h *LearnerHandler) EndSession(w http.ResponseWriter, r *http.Request) {
	if err := h.progress.Clear(r.Context(), chi.URLParam(r, "learnerID")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// POST /learners/{learnerID}/courses/{courseID}/enroll
func (h *LearnerHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	next, err := h.progression.Enroll(r.Context(), chi.URLParam(r, "learnerID"), chi.URLParam(r, "courseID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

func (h *LearnerHandler) OpenLesson(w http.ResponseWriter, r *http.Request) {
	learnerID, courseID, lessonID := lessonParams(r)
	view, err := h.progression.OpenLesson(r.Context(), learnerID, courseID, lessonID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *LearnerHandler) ViewQuestion(w http.ResponseWriter, r *http.Request) {
	learnerID, courseID, lessonID := lessonParams(r)
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: question index %q", domain.ErrQuestionNotFound, chi.URLParam(r, "index")))
		return
	}
	q, err := h.progression.ViewQuestion(r.Context(), learnerID, courseID, lessonID, index)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (h *LearnerHandler) AnswerPractice(w http.ResponseWriter, r *http.Request) {
	learnerID, courseID, lessonID := lessonParams(r)
	var answer domain.Answer
	if err := decodeJSON(r, &answer); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.progression.AnswerPractice(r.Context(), learnerID, courseID, lessonID, chi.URLParam(r, "questionID"), answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *LearnerHandler) Complete(w http.ResponseWriter, r *http.Request) {
	learnerID, courseID, lessonID := lessonParams(r)
	completion, err := h.progression.CompleteInstructional(r.Context(), learnerID, courseID, lessonID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

func (h *LearnerHandler) ResumeQuiz(w http.ResponseWriter, r *http.Request) {
	learnerID, courseID, lessonID := lessonParams(r)
	buf, err := h.quizzes.ResumeQuiz(r.Context(), learnerID, courseID, lessonID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buf)
}

func (h *LearnerHandler) BufferAnswer(w http.ResponseWriter, r *http.Request) {
	learnerID, courseID, lessonID := lessonParams(r)
	var answer domain.Answer
	if err := decodeJSON(r, &answer); err != nil {
		writeError(w, err)
		return
	}
	buf, err := h.quizzes.BufferAnswer(r.Context(), learnerID, courseID, lessonID, chi.URLParam(r, "questionID"), answer)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, buf)
}

func (h *LearnerHandler) SubmitQuiz(w http.ResponseWriter, r *http.Request) {
	learnerID, courseID, lessonID := lessonParams(r)
	res, err := h.quizzes.SubmitQuiz(r.Context(), learnerID, courseID, lessonID)
	if err != nil {
		writeError(w, err)
		return
	}
	status := http.StatusCreated
	if res.Replayed {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

func lessonParams(r *http.Request) (learnerID, courseID, lessonID string) {
	return chi.URLParam(r, "learnerID"), chi.URLParam(r, "courseID"), chi.URLParam(r, "lessonID")
}
