package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/ignisattend/ignis/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	attendanceHandler := handlers.NewAttendanceHandler(s.service)
	embeddingsHandler := handlers.NewEmbeddingsHandler(s.service)
	livenessHandler := handlers.NewLivenessHandler(s.service)
	disputesHandler := handlers.NewDisputesHandler(s.service)

	// Health check
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Attendance
		r.Post("/attendance/scan", attendanceHandler.Scan)
		r.Post("/attendance/mark", attendanceHandler.Mark)
		r.Post("/attendance/manual", attendanceHandler.Manual)
		r.Get("/attendance/session/{sessionID}", attendanceHandler.SessionRecords)
		r.Get("/attendance/course/{courseID}/stats", attendanceHandler.CourseStats)

		// Disputes
		r.Post("/disputes", disputesHandler.Open)
		r.Post("/disputes/resolve", disputesHandler.Resolve)
		r.Get("/disputes/student/{studentID}", disputesHandler.ListByStudent)
		r.Get("/disputes/course/{courseID}", disputesHandler.ListByCourse)

		// Enrollment captures
		r.Post("/embeddings/add", embeddingsHandler.Add)
		r.Get("/embeddings/{studentID}", embeddingsHandler.List)
		r.Delete("/embeddings/{studentID}", embeddingsHandler.Delete)

		// Liveness
		r.Post("/liveness/static", livenessHandler.Static)
		r.Post("/liveness/challenge", livenessHandler.Challenge)
	})
}
