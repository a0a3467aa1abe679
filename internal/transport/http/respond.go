package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"course-progress-service/internal/domain"
)

type errorPayload struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("http encode response: %v", err)
	}
}

// writeError maps domain errors onto status codes.
func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("http request failed: %v", err)
	}
	writeJSON(w, status, errorPayload{Message: err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrSubmissionFailed),
		errors.Is(err, domain.ErrNotifyFailed),
		errors.Is(err, domain.ErrProgressUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrInvalidAnswer),
		errors.Is(err, domain.ErrInvalidQuestion),
		errors.Is(err, domain.ErrWrongLessonType):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrLessonLocked),
		errors.Is(err, domain.ErrQuestionLocked),
		errors.Is(err, domain.ErrCourseInactive),
		errors.Is(err, domain.ErrNotEnrolled):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrCourseNotFound),
		errors.Is(err, domain.ErrLessonNotFound),
		errors.Is(err, domain.ErrQuestionNotFound),
		errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrQuizCompleted),
		errors.Is(err, domain.ErrQuizIncomplete):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return errors.Join(domain.ErrInvalidAnswer, err)
	}
	return nil
}
