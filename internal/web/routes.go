package web

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/kozaktomas/attendance-tracker/internal/web/handlers"
	"github.com/kozaktomas/attendance-tracker/internal/web/middleware"
	"github.com/kozaktomas/attendance-tracker/internal/web/static"
)

func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.app)
	sessionsHandler := handlers.NewSessionsHandler(s.app)
	attendanceHandler := handlers.NewAttendanceHandler(s.app)
	recognizeHandler := handlers.NewRecognizeHandler(s.app)
	studentsHandler := handlers.NewStudentsHandler(s.app, s.jobManager)
	eventsHandler := handlers.NewEventsHandler(s.app)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", healthHandler.Get)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.app.Config.Web.APIToken))

		// Streams are long-lived and must not hit the request timeout.
		r.Get("/events", eventsHandler.Stream)
		r.Get("/students/train/{jobId}/events", studentsHandler.TrainEvents)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(2 * time.Minute))

			// Sessions
			r.Get("/sessions", sessionsHandler.List)
			r.Post("/sessions", sessionsHandler.Create)
			r.Get("/sessions/{id}", sessionsHandler.Get)
			r.Post("/sessions/{id}/open", sessionsHandler.Open)
			r.Post("/sessions/{id}/close", sessionsHandler.Close)
			r.Post("/sessions/{id}/reset", sessionsHandler.Reset)
			r.Get("/sessions/{id}/rules", sessionsHandler.Rules)
			r.Get("/sessions/{id}/attendance", sessionsHandler.Attendance)

			// Attendance
			r.Patch("/attendance/{id}", attendanceHandler.Edit)
			r.Post("/attendance/{id}/commit", attendanceHandler.Commit)
			r.Get("/confirmations", attendanceHandler.ListConfirmations)
			r.Post("/confirmations/{id}", attendanceHandler.ResolveConfirmation)

			// Recognition
			r.Post("/recognize", recognizeHandler.Recognize)
			r.Post("/frames", recognizeHandler.Frame)

			// Students
			r.Get("/students", studentsHandler.List)
			r.Post("/students", studentsHandler.Create)
			r.Delete("/students/{id}", studentsHandler.Delete)
			r.Post("/students/{id}/images", studentsHandler.Enroll)
			r.Get("/students/{id}/similar", studentsHandler.Similar)
			r.Post("/students/train", studentsHandler.Train)
			r.Get("/students/train/{jobId}", studentsHandler.TrainStatus)
			r.Delete("/students/train/{jobId}", studentsHandler.TrainCancel)
		})
	})

	// Operator dashboard
	s.router.Get("/", s.serveAsset("/index.html", "text/html; charset=utf-8"))
	s.router.Get("/app.js", s.serveAsset("/app.js", "application/javascript; charset=utf-8"))
}

// serveAsset serves one embedded dashboard file.
func (s *Server) serveAsset(path, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !static.HasDist() {
			http.NotFound(w, r)
			return
		}
		f, err := static.GetFileSystem().Open(path)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		defer f.Close()

		w.Header().Set("Content-Type", contentType)
		w.Header().Set("Cache-Control", "no-cache")
		w.WriteHeader(http.StatusOK)
		io.Copy(w, f)
	}
}
