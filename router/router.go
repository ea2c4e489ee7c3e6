package router

import (
	"database/sql"
	"net/http"

	drawingHandler "sketchsync/internal/drawing"
	"sketchsync/internal/drawing/repository"
	"sketchsync/internal/drawing/service"
	"sketchsync/middleware"
	"sketchsync/pkg/auth"
	"sketchsync/room"
)

func Setup(db *sql.DB, reg *room.Registry, verifier *auth.Verifier) http.Handler {
	mux := http.NewServeMux()

	authWrap := func(h http.Handler) http.Handler {
		return middleware.AuthMiddleware(verifier, h)
	}

	// WebSocket
	wsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		room.ServeWs(reg, w, r, middleware.UserID(r))
	})
	mux.Handle("/ws", authWrap(wsHandler))

	// REST API
	repo := repository.NewDrawingRepository(db)
	svc := service.NewDrawingService(repo, reg)
	handler := drawingHandler.NewDrawingHandler(svc)

	mux.Handle("POST /api/drawings", authWrap(http.HandlerFunc(handler.CreateDrawing)))
	mux.Handle("GET /api/drawings", authWrap(http.HandlerFunc(handler.GetDrawings)))
	mux.Handle("PATCH /api/drawings/{id}", authWrap(http.HandlerFunc(handler.RenameDrawing)))
	mux.Handle("DELETE /api/drawings/{id}", authWrap(http.HandlerFunc(handler.DeleteDrawing)))

	return middleware.CORSMiddleware(mux)
}
