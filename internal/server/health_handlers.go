package server

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Component states reported by the readiness check.
const (
	statusHealthy     = "healthy"
	statusUnhealthy   = "unhealthy"
	statusUnavailable = "unavailable"
	statusDegraded    = "degraded"
)

const readinessTimeout = 5 * time.Second

// LivenessResponse is returned by /health/live.
type LivenessResponse struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}

// ReadinessResponse is returned by /health/ready.
type ReadinessResponse struct {
	Service string            `json:"service"`
	Version string            `json:"version"`
	Status  string            `json:"status"`
	Checks  map[string]string `json:"checks"`
	Time    time.Time         `json:"time"`
}

// LivenessCheck reports that the process is serving requests.
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.JSON(LivenessResponse{Status: "up", Time: time.Now().UTC()})
}

// ReadinessCheck pings the database and Redis concurrently. The database is
// required; without Redis every lookup still falls back to the database, so
// the service reports degraded but stays ready.
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), readinessTimeout)
	defer cancel()

	var dbStatus, redisStatus string
	var wg sync.WaitGroup
	wg.Go(func() { dbStatus = s.pingDatabase(ctx) })
	wg.Go(func() { redisStatus = s.pingRedis(ctx) })
	wg.Wait()

	resp := ReadinessResponse{
		Service: "stream-code-registry",
		Version: "1.0.0",
		Status:  statusHealthy,
		Checks:  map[string]string{"database": dbStatus, "redis": redisStatus},
		Time:    time.Now().UTC(),
	}
	code := fiber.StatusOK
	switch {
	case dbStatus != statusHealthy:
		resp.Status = statusUnhealthy
		code = fiber.StatusServiceUnavailable
	case redisStatus != statusHealthy:
		resp.Status = statusDegraded
	}
	return c.Status(code).JSON(resp)
}

func (s *Server) pingDatabase(ctx context.Context) string {
	sqlDB, err := s.db.DB()
	if err != nil || sqlDB.PingContext(ctx) != nil {
		return statusUnhealthy
	}
	return statusHealthy
}

func (s *Server) pingRedis(ctx context.Context) string {
	if s.redis == nil {
		return statusUnavailable
	}
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return statusUnhealthy
	}
	return statusHealthy
}
