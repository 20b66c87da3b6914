package asylum

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/lmittmann/tint"
)

const (
	apiPathStatus      = "/api/status"
	apiPathHealthCheck = "/healthz"
	xRequestIDHeader   = "X-Request-ID"
)

// StatusResponse is the payload for the read-only status endpoint.
type StatusResponse struct {
	Online        bool  `json:"online"`
	UptimeSeconds int64 `json:"uptime_seconds"`
	Servers       int64 `json:"servers"`
	Connects      int64 `json:"connects"`
	Disconnects   int64 `json:"disconnects"`
}

// API serves the bot's tiny HTTP surface: a liveness check and the
// status endpoint. There is nothing to authenticate; everything it
// exposes is read-only.
type API struct {
	config     *APIConfig
	engine     *gin.Engine
	httpServer *http.Server
	listen     string
	logger     *slog.Logger
	a          *Asylum
}

// newAPI builds the gin engine and HTTP server for the status API.
func newAPI(a *Asylum, config *APIConfig) *API {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	api := &API{
		config: config,
		engine: engine,
		listen: config.Listen,
		logger: slog.New(newLogHandler(config.LogLevel)).With(
			loggerNameKey, "api",
		),
		a: a,
	}

	engine.Use(gin.Recovery())
	engine.Use(requestIDMiddleware())
	engine.Use(api.loggingMiddleware())
	engine.Use(cors.Default())

	engine.GET(apiPathHealthCheck, api.healthCheck)
	engine.GET(apiPathStatus, api.status)

	api.httpServer = &http.Server{
		Addr:              config.Listen,
		Handler:           engine,
		ReadTimeout:       config.ReadTimeout,
		ReadHeaderTimeout: config.ReadHeaderTimeout,
		WriteTimeout:      config.WriteTimeout,
		IdleTimeout:       config.IdleTimeout,
	}

	return api
}

// Serve starts the HTTP server, shutting it down when ctx is canceled.
func (a *API) Serve(ctx context.Context) error {
	listener, err := net.Listen(defaultListenNetwork, a.listen)
	if err != nil {
		return err
	}
	a.logger.Info("status server listening", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.Serve(listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			a.a.config.ShutdownTimeout,
		)
		defer cancel()
		if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("error shutting down status server", tint.Err(err))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func (a *API) healthCheck(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (a *API) status(c *gin.Context) {
	var status StatusResponse
	if a.a.discord != nil {
		status.Online = a.a.discord.Connected()
		status.Servers = a.a.discord.GuildCount()
		status.Connects = a.a.discord.ConnectCount()
		status.Disconnects = a.a.discord.DisconnectCount()
	}
	if !a.a.startedAt.IsZero() {
		status.UptimeSeconds = int64(time.Since(a.a.startedAt).Seconds())
	}
	c.JSON(http.StatusOK, status)
}

func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(xRequestIDHeader)
		if requestID == "" {
			buf := make([]byte, 8)
			_, _ = rand.Read(buf)
			requestID = hex.EncodeToString(buf)
		}
		c.Header(xRequestIDHeader, requestID)
		c.Set("request_id", requestID)
		c.Next()
	}
}

func (a *API) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		a.logger.Info(
			"request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(started),
			"request_id", c.GetString("request_id"),
		)
	}
}
