package health

import (
	"context"
	"database/sql"
	"time"
)

const pingTimeout = 2 * time.Second

// Service reports process liveness and dependency readiness.
type Service struct {
	DB *sql.DB
}

// NewService constructs a health service. A nil db means the process runs on
// in-memory repositories and the database check reports "disabled".
func NewService(db *sql.DB) *Service {
	return &Service{DB: db}
}

// Status returns a health payload. The process is considered live as long as
// it can serve the request; database trouble is surfaced but does not flip ok,
// so orchestrators keep routing while the pool recovers.
func (s *Service) Status(ctx context.Context) map[string]any {
	dbStatus := "disabled"
	if s.DB != nil {
		pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		if err := s.DB.PingContext(pingCtx); err != nil {
			dbStatus = "down"
		} else {
			dbStatus = "ok"
		}
	}
	return map[string]any{
		"ok": true,
		"db": dbStatus,
	}
}
