package handler

import (
	"context"
	"net/http"
	"sync"
	"time"

	"custodial-wallet/internal/core/ports"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

const healthTimeout = 3 * time.Second

type depStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// HealthCheck handles GET /health. Every dependency is pinged concurrently.
func HealthCheck(checkers ...ports.HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		var (
			mu   sync.Mutex
			deps = make(map[string]depStatus, len(checkers))
		)

		// Each goroutine reports its own failure; Wait's error only says that one happened.
		var g errgroup.Group
		for _, checker := range checkers {
			g.Go(func() error {
				err := checker.Ping(ctx)

				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					deps[checker.Name()] = depStatus{Status: "unhealthy", Error: err.Error()}
					return err
				}
				deps[checker.Name()] = depStatus{Status: "healthy"}
				return nil
			})
		}

		status, httpCode := "healthy", http.StatusOK
		if err := g.Wait(); err != nil {
			status, httpCode = "degraded", http.StatusServiceUnavailable
		}

		c.JSON(httpCode, gin.H{
			"status":       status,
			"dependencies": deps,
		})
	}
}
