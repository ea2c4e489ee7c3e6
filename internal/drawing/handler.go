package drawing

import (
	"encoding/json"
	"errors"
	"net/http"

	"sketchsync/internal/drawing/model"
	"sketchsync/internal/drawing/service"
	"sketchsync/middleware"
	"sketchsync/pkg/logger"
)

type DrawingHandler struct {
	Service *service.DrawingService
}

func NewDrawingHandler(svc *service.DrawingService) *DrawingHandler {
	return &DrawingHandler{Service: svc}
}

func (h *DrawingHandler) CreateDrawing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	var req model.CreateDrawingRequest
	_ = json.NewDecoder(r.Body).Decode(&req) // default to empty title

	id, err := h.Service.Create(userID, req.Title)
	if err != nil {
		logger.Sugar.Errorf("Handler: failed to create drawing: %v", err)
		http.Error(w, "Failed to create drawing", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(model.CreateDrawingResponse{ID: id})
}

func (h *DrawingHandler) RenameDrawing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	id := r.PathValue("id")

	var req model.RenameDrawingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Title == "" {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.Service.Rename(id, userID, req.Title); err != nil {
		if errors.Is(err, service.ErrNotOwner) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to rename drawing", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *DrawingHandler) DeleteDrawing(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)
	id := r.PathValue("id")

	if err := h.Service.Delete(id, userID); err != nil {
		if errors.Is(err, service.ErrNotOwner) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, "Failed to delete drawing", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

func (h *DrawingHandler) GetDrawings(w http.ResponseWriter, r *http.Request) {
	userID := middleware.UserID(r)

	drawings, err := h.Service.List(userID)
	if err != nil {
		http.Error(w, "Failed to list drawings", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(drawings)
}
