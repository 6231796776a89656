// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package callback

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

func startServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = zaptest.NewLogger(t)
	}
	srv, err := Start(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

func post(t *testing.T, url string) (int, string) {
	t.Helper()
	resp, err := http.Post(url, "text/plain", nil)
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func receive(t *testing.T, srv *Server) string {
	t.Helper()
	select {
	case code := <-srv.Codes():
		return code
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for code")
		return ""
	}
}

func assertNoCode(t *testing.T, srv *Server) {
	t.Helper()
	select {
	case code := <-srv.Codes():
		t.Fatalf("unexpected code on handoff: %q", code)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendsCodeToChannel(t *testing.T) {
	srv := startServer(t, Options{})

	status, _ := post(t, srv.URL()+"?code=otters-are-the-cutest")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "otters-are-the-cutest", receive(t, srv))
}

func TestDeliversExactlyOnce(t *testing.T) {
	srv := startServer(t, Options{})

	status, _ := post(t, srv.URL()+"?code=abc123")
	require.Equal(t, http.StatusNoContent, status)

	status, body := post(t, srv.URL()+"?code=def456")
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body, "already received")

	assert.Equal(t, "abc123", receive(t, srv))
	assertNoCode(t, srv)
}

func TestRejectsMissingCode(t *testing.T) {
	srv := startServer(t, Options{})

	status, body := post(t, srv.URL())
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "missing code")

	status, _ = post(t, srv.URL()+"?code=")
	assert.Equal(t, http.StatusBadRequest, status)
	assertNoCode(t, srv)

	// the server keeps waiting for a valid request
	status, _ = post(t, srv.URL()+"?code=abc123")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "abc123", receive(t, srv))
}

func TestValidatesState(t *testing.T) {
	srv := startServer(t, Options{State: "expected-state"})

	status, body := post(t, srv.URL()+"?code=abc123&state=forged")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body, "invalid state")

	status, _ = post(t, srv.URL()+"?code=abc123")
	assert.Equal(t, http.StatusBadRequest, status)
	assertNoCode(t, srv)

	status, _ = post(t, srv.URL()+"?code=abc123&state=expected-state")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "abc123", receive(t, srv))
}

func TestGetRedirectShowsConfirmation(t *testing.T) {
	srv := startServer(t, Options{})

	resp, err := http.Get(srv.URL() + "?code=abc123")
	require.NoError(t, err)
	defer func() {
		_ = resp.Body.Close()
	}()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "You can close this window")
	assert.Equal(t, "abc123", receive(t, srv))
}

func TestEntryPage(t *testing.T) {
	srv := startServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, EntryPath, nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	srv.ServeEntryPage([]byte("<html>form</html>"))

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, EntryPath, nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "<html>form</html>", w.Body.String())
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.Equal(t, srv.URL()+"register", srv.EntryURL())
}

func TestHandlerRejectsUnknownRoutes(t *testing.T) {
	srv := startServer(t, Options{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/other?code=abc", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assertNoCode(t, srv)
}

func TestURLAdvertisesLoopbackForUnspecifiedAddress(t *testing.T) {
	srv := startServer(t, Options{BindAddress: "0.0.0.0"})

	addr, ok := srv.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.NotNil(t, addr.IP.To4(), "0.0.0.0 must bind an IPv4 socket, got %s", addr)
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(addr.Port)+"/", srv.URL())

	status, _ := post(t, srv.URL()+"?code=abc123")
	assert.Equal(t, http.StatusNoContent, status)
	assert.Equal(t, "abc123", receive(t, srv))
}

func TestURLAdvertisesIPv6LoopbackForUnspecifiedIPv6(t *testing.T) {
	ln, err := net.Listen("tcp6", "[::1]:0")
	if err != nil {
		t.Skipf("IPv6 loopback unavailable: %v", err)
	}
	require.NoError(t, ln.Close())

	srv := startServer(t, Options{BindAddress: "::"})
	addr, ok := srv.Addr().(*net.TCPAddr)
	require.True(t, ok)
	assert.Equal(t, "http://[::1]:"+strconv.Itoa(addr.Port)+"/", srv.URL())
}

func TestListenNetwork(t *testing.T) {
	assert.Equal(t, "tcp4", listenNetwork("0.0.0.0"))
	assert.Equal(t, "tcp4", listenNetwork("127.0.0.1"))
	assert.Equal(t, "tcp6", listenNetwork("::"))
	assert.Equal(t, "tcp6", listenNetwork("::1"))
	assert.Equal(t, "tcp", listenNetwork("localhost"))
}

func TestExplicitPort(t *testing.T) {
	free, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := free.Addr().(*net.TCPAddr).Port
	require.NoError(t, free.Close())

	srv := startServer(t, Options{Port: port})
	assert.Equal(t, "http://127.0.0.1:"+strconv.Itoa(port)+"/", srv.URL())
}

func TestBindFailure(t *testing.T) {
	first := startServer(t, Options{})
	port := first.Addr().(*net.TCPAddr).Port

	_, err := Start(context.Background(), Options{Port: port})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start callback listener")
}

func TestInvalidPort(t *testing.T) {
	_, err := Start(context.Background(), Options{Port: 70000})
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid callback port"))
}

func TestCloseIsSafeToRepeat(t *testing.T) {
	srv, err := Start(context.Background(), Options{})
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	_ = srv.Close()

	_, err = http.Post(srv.URL()+"?code=abc", "text/plain", nil)
	require.Error(t, err)
}

func TestLogsNeverContainTheCode(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	srv := startServer(t, Options{Logger: zap.New(core)})

	status, _ := post(t, srv.URL()+"?code=s3cr3t-code")
	require.Equal(t, http.StatusNoContent, status)
	status, _ = post(t, srv.URL()+"?code=s3cr3t-code")
	require.Equal(t, http.StatusConflict, status)

	received := logs.FilterMessage("Received one-time code").All()
	require.Len(t, received, 1)
	fields := received[0].ContextMap()
	assert.Equal(t, true, fields["codeSet"])
	assert.EqualValues(t, len("s3cr3t-code"), fields["codeLength"])
	assert.Equal(t, 1, logs.FilterMessage("Rejected duplicate callback").Len())

	for _, entry := range logs.All() {
		for _, value := range entry.ContextMap() {
			assert.NotContains(t, fmt.Sprint(value), "s3cr3t-code")
		}
	}
}
