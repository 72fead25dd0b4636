package server

import (
	"context"
	"crypto/subtle"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// DefaultHTTPAddr is the default listen address for the HTTP transport.
const DefaultHTTPAddr = ":8080"

const readHeaderTimeout = 10 * time.Second

// HTTPConfig configures the combined MCP and management HTTP server.
type HTTPConfig struct {
	Addr string

	// APIToken, when set, is required as a bearer token on /v1 and /mcp.
	APIToken string

	// DisableStreaming turns off SSE responses on /mcp.
	DisableStreaming bool
}

// HTTPServer serves the streamable-http MCP endpoint, the management API and
// the health probes on one listener.
type HTTPServer struct {
	echo   *echo.Echo
	health *HealthChecker
	addr   string
}

// NewHTTPServer builds the HTTP server. mcpSrv may be nil to serve only the
// management API.
func NewHTTPServer(mcpSrv *mcpserver.MCPServer, sc *ServerContext, cfg HTTPConfig) *HTTPServer {
	if cfg.Addr == "" {
		cfg.Addr = DefaultHTTPAddr
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadHeaderTimeout = readHeaderTimeout

	e.Use(middleware.Recover())
	e.Use(requestLogger(sc))

	var auth []echo.MiddlewareFunc
	if cfg.APIToken != "" {
		auth = append(auth, bearerAuth(cfg.APIToken))
	}

	v1 := e.Group("/v1", auth...)
	NewAPI(sc).RegisterRoutes(v1)

	link := NewGoogleLink(sc)
	v1.POST("/users/:user_id/google/authorize", link.Authorize)
	e.GET(OAuthCallbackPath, link.Callback)

	if mcpSrv != nil {
		opts := []mcpserver.StreamableHTTPOption{
			mcpserver.WithEndpointPath("/mcp"),
			mcpserver.WithHTTPContextFunc(HTTPUserContext),
		}
		if cfg.DisableStreaming {
			opts = append(opts, mcpserver.WithDisableStreaming(true))
		}
		streamable := mcpserver.NewStreamableHTTPServer(mcpSrv, opts...)
		e.Any("/mcp", echo.WrapHandler(streamable), auth...)
	}

	health := NewHealthChecker(sc)
	health.RegisterHealthEndpoints(e)

	return &HTTPServer{
		echo:   e,
		health: health,
		addr:   cfg.Addr,
	}
}

// Handler returns the root handler, for tests and embedding.
func (s *HTTPServer) Handler() http.Handler {
	return s.echo
}

// Health returns the server's health checker.
func (s *HTTPServer) Health() *HealthChecker {
	return s.health
}

// Addr returns the configured listen address.
func (s *HTTPServer) Addr() string {
	return s.addr
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a
// graceful shutdown.
func (s *HTTPServer) Start() error {
	return s.echo.Start(s.addr)
}

// Shutdown marks the server not ready and drains in-flight requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	s.health.SetReady(false)
	return s.echo.Shutdown(ctx)
}

func bearerAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(token)) == 1, nil
		},
	})
}

// requestLogger logs each request and records its HTTP metrics.
func requestLogger(sc *ServerContext) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogMethod:  true,
		LogURI:     true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			sc.Metrics().RecordHTTPRequest(ctx, v.Method, path, v.Status, v.Latency)

			attrs := []any{
				"method", v.Method,
				"path", path,
				"status", v.Status,
				"duration", v.Latency,
			}
			if v.Error != nil {
				attrs = append(attrs, "error", v.Error)
			}
			sc.Logger().DebugContext(ctx, "http request", attrs...)
			return nil
		},
	})
}
