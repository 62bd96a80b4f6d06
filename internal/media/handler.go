package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"mediastore/internal/media/model"
	"mediastore/internal/media/service"
	"mediastore/pkg/logger"
)

const DefaultMaxBodyBytes = 10 << 20

type MediaHandler struct {
	Service      *service.MediaService
	MaxBodyBytes int64
}

func NewMediaHandler(service *service.MediaService, maxBodyBytes int64) *MediaHandler {
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}
	return &MediaHandler{Service: service, MaxBodyBytes: maxBodyBytes}
}

// ServeHTTP binds the media endpoint: POST stores a document, DELETE removes
// everything an owner has stored.
func (h *MediaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.CreateDocument(w, r)
	case http.MethodDelete:
		h.DeleteOwner(w, r)
	default:
		w.Header().Set("Allow", "POST, DELETE")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *MediaHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID := q.Get("userid")
	if ownerID == "" {
		h.fail(w, "create", model.ErrMissingOwner)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge,
				"body exceeds "+strconv.FormatInt(tooLarge.Limit, 10)+" bytes")
			return
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	ref, err := h.Service.Write(r.Context(), model.CreateRequest{
		OwnerID:     ownerID,
		Public:      strings.EqualFold(q.Get("public"), "true"),
		ContentType: r.Header.Get("Content-Type"),
		Body:        body,
	})
	if err != nil {
		h.fail(w, "create", err)
		return
	}

	w.Header().Set("Location", ref.Location)
	writeJSON(w, http.StatusCreated, ref)
}

func (h *MediaHandler) DeleteOwner(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.DeleteOwner(r.Context(), r.URL.Query().Get("userid"))
	if err != nil {
		h.fail(w, "delete", err)
		return
	}

	switch res.Outcome {
	case model.OutcomeDeleted:
		w.WriteHeader(http.StatusNoContent)
	case model.OutcomeNotFound:
		writeError(w, http.StatusNotFound, model.ErrNotFound.Error())
	default:
		writeError(w, http.StatusServiceUnavailable, model.ErrPartialFailure.Error())
	}
}

func (h *MediaHandler) fail(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	switch {
	case model.IsClientError(err):
		writeError(w, status, err.Error())
	case errors.Is(err, model.ErrAlreadyExists):
		logger.Sugar.Errorf("Handler: %s failed: %v", op, err)
		writeError(w, status, model.ErrAlreadyExists.Error())
	default:
		logger.Sugar.Errorf("Handler: %s failed: %v", op, err)
		// Storage details stay in the log.
		writeError(w, status, model.ErrStorageFailure.Error())
	}
}

// statusFor maps service errors onto response codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrMissingOwner), errors.Is(err, model.ErrInvalidIdentifier):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnsupportedMediaType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, model.ErrInvalidPayload):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrPartialFailure):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Sugar.Errorf("Handler: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg})
}
