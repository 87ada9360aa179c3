// Package httpd is the HTTP surface of the gateway: a gin server, the
// session-cookie middleware and the /api route handlers.
package httpd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/oddbit-project/s3browser/log"
)

const requestIDHeader = "X-Request-Id"

type Server struct {
	Config *ServerConfig
	Router *gin.Engine
	Server *http.Server

	logger *log.Logger
}

// NewRouter creates a gin router with request-id, access-log and
// recovery middleware
func NewRouter(serverName string, debug bool, logger *log.Logger) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(requestIDMiddleware())
	router.Use(accessLogMiddleware(logger))
	router.Use(gin.Recovery())
	return router
}

func NewServer(cfg *ServerConfig, logger *log.Logger) (*Server, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = log.New("httpd")
	}

	router := NewRouter(ServerDefaultName, cfg.Debug, logger)
	return &Server{
		Config: cfg,
		Router: router,
		Server: &http.Server{
			Addr:         cfg.BindAddr,
			Handler:      router,
			ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
			WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
		},
		logger: logger,
	}, nil
}

// Group creates a route group under relativePath
func (s *Server) Group(relativePath string) *gin.RouterGroup {
	return s.Router.Group(relativePath)
}

// Start blocks serving requests until Shutdown is called or the
// listener fails
func (s *Server) Start() error {
	var err error
	if s.Config.UseTLS() {
		err = s.Server.ListenAndServeTLS(s.Config.TLSCert, s.Config.TLSKey)
	} else {
		err = s.Server.ListenAndServe()
	}
	if !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for in-flight
// requests, bounded by ctx
func (s *Server) Shutdown(ctx context.Context) error {
	return s.Server.Shutdown(ctx)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		id := ctx.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		ctx.Set("request_id", id)
		ctx.Header(requestIDHeader, id)
		ctx.Next()
	}
}

func accessLogMiddleware(logger *log.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		start := time.Now()
		ctx.Next()
		logger.Info("request", log.KV{
			"method":     ctx.Request.Method,
			"path":       ctx.Request.URL.Path,
			"status":     ctx.Writer.Status(),
			"elapsed_ms": time.Since(start).Milliseconds(),
			"request_id": ctx.GetString("request_id"),
			"remote":     ctx.ClientIP(),
		})
	}
}
