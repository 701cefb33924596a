// Package server exposes the testbench over HTTP: error injection, region
// inspection, and the usual health and metrics surfaces.
package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/svetly-todorov/rasctl/internal/observability"
	"github.com/svetly-todorov/rasctl/internal/testbench"
)

// Server is the control-plane HTTP server wrapped around a testbench.
type Server struct {
	Name     string
	Addr     string
	Appeared time.Time

	bench  *testbench.Bench
	router *gin.Engine
}

// Appear builds the router with the standard middleware stack.
func Appear(name, addr string, corsOrigins []string, bench *testbench.Bench) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware())
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	return &Server{
		Name:     name,
		Addr:     addr,
		Appeared: time.Now(),
		bench:    bench,
		router:   r,
	}
}

// HTTPRouter exposes the router, mostly for tests.
func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Serve runs until the listener fails.
func (s *Server) Serve() error {
	return s.router.Run(s.Addr)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		v := strings.TrimSpace(o)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
