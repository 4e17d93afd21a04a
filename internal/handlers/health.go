package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// Pinger reports whether the document store is reachable.
type Pinger interface {
	Ping(ctx context.Context, rp *readpref.ReadPref) error
}

// HealthCheck reports liveness and whether MongoDB answers a ping.
func HealthCheck(db Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()

		status, message, mongo := http.StatusOK, "healthy", "up"
		if db == nil || db.Ping(ctx, readpref.Primary()) != nil {
			status, message, mongo = http.StatusServiceUnavailable, "unhealthy", "down"
		}
		return respond(c, status, message, map[string]string{
			"service": "vidtube-api",
			"mongo":   mongo,
		})
	}
}
