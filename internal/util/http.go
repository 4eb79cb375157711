package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

type APIError struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Violations []string `json:"violations,omitempty"`
	RequestID  string   `json:"request_id,omitempty"`
}

func WriteJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func WriteError(w http.ResponseWriter, status int, code, msg, reqID string) {
	WriteJSON(w, status, APIError{Code: code, Message: msg, RequestID: reqID})
}

// WriteViolations answers 422 with the full list of policy failures.
func WriteViolations(w http.ResponseWriter, violations []string, reqID string) {
	WriteJSON(w, http.StatusUnprocessableEntity, APIError{
		Code:       "validation_failed",
		Message:    "the submitted data is not valid",
		Violations: violations,
		RequestID:  reqID,
	})
}

// DecodeJSON reads exactly one JSON object from the body into dst.
func DecodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("invalid json: trailing data")
	}
	return nil
}

// Pagination reads page and page_size query parameters and returns
// (page, pageSize, offset).
func Pagination(r *http.Request) (int, int, int) {
	page := 1
	pageSize := 25
	if v := r.URL.Query().Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			page = p
		}
	}
	if v := r.URL.Query().Get("page_size"); v != "" {
		if ps, err := strconv.Atoi(v); err == nil {
			if ps < 1 {
				ps = 1
			}
			if ps > 100 {
				ps = 100
			}
			pageSize = ps
		}
	}
	return page, pageSize, (page - 1) * pageSize
}
