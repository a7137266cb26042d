package demo

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"finished/api/internal/validation"
)

type createRequest struct {
	Title       string `json:"title" validate:"notblank"`
	Description string `json:"description"`
	Type        string `json:"type" validate:"notblank"`
}

type reorderRequest struct {
	NewList *[]Item `json:"newList"`
}

// Handler serves the four demo routes over store.
type Handler struct {
	store    *Store
	validate *validation.Validator
	logger   *zap.Logger
}

func NewHandler(store *Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{store: store, validate: validation.New(), logger: logger.Named("demo")}
}

// Router returns the chi router with open CORS, request ids and an access
// log.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))
	r.Use(h.accessLog)

	r.Get("/items", h.list)
	r.Post("/items", h.create)
	r.Put("/items/reorder", h.reorder)
	r.Delete("/items/{id}", h.delete)
	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func (h *Handler) list(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.store.List())
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var body createRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Invalid JSON body", nil)
		return
	}
	if err := h.validate.Validate(body); err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing title or type", fieldErrors(err))
		return
	}
	item := h.store.Create(strings.TrimSpace(body.Title), body.Description, strings.TrimSpace(body.Type))
	writeJSON(w, http.StatusCreated, item)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	h.store.Delete(chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// reorder validates every element before replacing anything.
func (h *Handler) reorder(w http.ResponseWriter, r *http.Request) {
	var body reorderRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&body); err != nil || body.NewList == nil {
		writeMessage(w, http.StatusBadRequest, "newList must be an array of items", nil)
		return
	}
	for _, item := range *body.NewList {
		if err := h.validate.Validate(item); err != nil {
			writeMessage(w, http.StatusBadRequest, "Invalid item structure in newList", fieldErrors(err))
			return
		}
	}
	writeJSON(w, http.StatusOK, h.store.Replace(*body.NewList))
}

func fieldErrors(err error) map[string]string {
	var fields validation.FieldErrors
	if errors.As(err, &fields) {
		return fields
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeMessage(w http.ResponseWriter, status int, message string, details map[string]string) {
	payload := map[string]any{"message": message}
	if len(details) > 0 {
		payload["details"] = details
	}
	writeJSON(w, status, payload)
}
