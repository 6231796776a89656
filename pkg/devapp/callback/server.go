// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/telekom/github-dev-app/pkg/system"
)

// EntryPath serves the registration page once one has been set.
const EntryPath = "/register"

const receivedPage = `<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>GitHub App registered</title></head>
<body><p>The GitHub App has been registered. You can close this window.</p></body></html>
`

type Options struct {
	// BindAddress is the host or IP to listen on. Empty means 127.0.0.1.
	BindAddress string
	// Port to listen on; 0 picks a free port.
	Port int
	// State, when set, must match the state query parameter of the callback.
	State string
	// AccessLog enables per-request logging. Request URLs carry the one-time
	// code, so keep this off unless debugging.
	AccessLog bool
	Logger    *zap.Logger
}

type Server struct {
	listener  net.Listener
	host      string
	http      *http.Server
	engine    *gin.Engine
	codes     chan string
	delivered atomic.Bool
	state     string
	entryPage atomic.Pointer[[]byte]
	log       *zap.SugaredLogger
	done      chan struct{}
}

// Start binds the listener and serves on a background goroutine. When Start
// returns without error the server is already accepting connections, so its
// URL can be handed out right away.
func Start(ctx context.Context, opts Options) (*Server, error) {
	host := opts.BindAddress
	if host == "" {
		host = "127.0.0.1"
	}
	if opts.Port < 0 || opts.Port > 65535 {
		return nil, fmt.Errorf("invalid callback port: %d", opts.Port)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	addr := net.JoinHostPort(host, strconv.Itoa(opts.Port))
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, listenNetwork(host), addr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener on %s: %w", addr, err)
	}

	s := &Server{
		listener: listener,
		host:     host,
		codes:    make(chan string, 1),
		state:    opts.State,
		log:      logger.Sugar().With("component", "callback"),
		done:     make(chan struct{}),
	}
	s.engine = s.newEngine(logger, opts.AccessLog)
	s.http = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		defer close(s.done)
		if err := s.http.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("Callback server stopped", "error", err)
		}
	}()

	s.log.Debugw("Callback server listening", "address", listener.Addr().String())
	return s, nil
}

func (s *Server) newEngine(logger *zap.Logger, accessLog bool) *gin.Engine {
	engine := gin.New()
	if accessLog {
		engine.Use(ginzap.Ginzap(logger, time.RFC3339, true))
	}
	engine.Use(ginzap.RecoveryWithZap(logger, true))

	// GitHub redirects the browser with GET; POST keeps the endpoint usable
	// from scripts and tests.
	engine.POST("/", s.acceptCode)
	engine.GET("/", s.acceptCode)
	engine.GET(EntryPath, s.serveEntryPage)
	return engine
}

// Addr is the bound listener address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// URL is the callback URL to use as the manifest's redirect_url. Unspecified
// bind addresses are advertised as the loopback address of the configured
// family: 0.0.0.0 as 127.0.0.1, :: as ::1.
func (s *Server) URL() string {
	host, port, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return "http://" + s.listener.Addr().String() + "/"
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "127.0.0.1"
		if configured := net.ParseIP(s.host); configured != nil && configured.To4() == nil {
			host = "::1"
		}
	}
	return "http://" + net.JoinHostPort(host, port) + "/"
}

// listenNetwork keeps IPv4 literals off dual-stack sockets, which report
// their address as [::].
func listenNetwork(host string) string {
	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return "tcp"
	case ip.To4() != nil:
		return "tcp4"
	default:
		return "tcp6"
	}
}

// EntryURL is where the registration page is served.
func (s *Server) EntryURL() string {
	return s.URL() + EntryPath[1:]
}

// Codes yields the one-time code. At most one value is ever sent.
func (s *Server) Codes() <-chan string {
	return s.codes
}

// Handler exposes the router for in-process tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// ServeEntryPage sets the HTML returned by GET /register.
func (s *Server) ServeEntryPage(page []byte) {
	s.entryPage.Store(&page)
}

// Close stops the listener and waits for the serve loop to exit.
func (s *Server) Close() error {
	err := s.http.Close()
	<-s.done
	return err
}

func (s *Server) acceptCode(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		s.log.Warnw("Rejected callback without code", "method", c.Request.Method)
		c.String(http.StatusBadRequest, "missing code")
		return
	}
	if s.state != "" && c.Query("state") != s.state {
		s.log.Warnw("Rejected callback with invalid state", "method", c.Request.Method)
		c.String(http.StatusBadRequest, "invalid state")
		return
	}
	if !s.delivered.CompareAndSwap(false, true) {
		s.log.Warnw("Rejected duplicate callback", "method", c.Request.Method)
		c.String(http.StatusConflict, "code already received")
		return
	}
	// buffered with capacity 1 and guarded by delivered, so this never blocks
	s.codes <- code
	s.log.Debugw("Received one-time code", system.RedactedFields("code", code)...)

	if c.Request.Method == http.MethodGet {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(receivedPage))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) serveEntryPage(c *gin.Context) {
	page := s.entryPage.Load()
	if page == nil {
		c.String(http.StatusNotFound, "no registration in progress")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Data(http.StatusOK, "text/html; charset=utf-8", *page)
}
