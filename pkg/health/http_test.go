package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPChecker_Status(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		min, max    int
		wantHealthy bool
	}{
		{name: "ok", status: http.StatusOK, min: 200, max: 399, wantHealthy: true},
		{name: "server error", status: http.StatusInternalServerError, min: 200, max: 399},
		{name: "created outside narrow range", status: http.StatusCreated, min: 200, max: 200},
		{name: "custom range", status: http.StatusTooManyRequests, min: 200, max: 429, wantHealthy: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			result := NewHTTPChecker(server.URL).WithStatusRange(tt.min, tt.max).Check(context.Background())
			assert.Equal(t, tt.wantHealthy, result.Healthy, result.Message)
			assert.Contains(t, result.Message, "HTTP "+strconv.Itoa(tt.status))
			assert.False(t, result.CheckedAt.IsZero())
		})
	}
}

func TestHTTPChecker_HeadersAndMethod(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead || r.Header.Get("X-Vault-Token") != "root" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).
		WithMethod(http.MethodHead).
		WithHeader("X-Vault-Token", "root").
		Check(context.Background())
	assert.True(t, result.Healthy, result.Message)
}

func TestHTTPChecker_ExpectBody(t *testing.T) {
	leader := `"10.0.0.11:8300"`
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(leader))
	}))
	defer server.Close()

	host, port := splitURL(t, server.URL)
	checker := NewConsulLeaderChecker(host, port)
	assert.True(t, checker.Check(context.Background()).Healthy)

	leader = `""`
	result := checker.Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "body does not contain")
}

func TestNewVaultChecker(t *testing.T) {
	status := http.StatusOK
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/sys/health", r.URL.Path)
		assert.Equal(t, "true", r.URL.Query().Get("standbyok"))
		w.WriteHeader(status)
	}))
	defer server.Close()

	host, port := splitURL(t, server.URL)
	checker := NewVaultChecker(host, port)
	assert.True(t, checker.Check(context.Background()).Healthy)

	status = http.StatusServiceUnavailable // sealed
	assert.False(t, checker.Check(context.Background()).Healthy)
}

func TestHTTPChecker_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	result := NewHTTPChecker(server.URL).WithTimeout(20 * time.Millisecond).Check(context.Background())
	assert.False(t, result.Healthy)
	assert.Contains(t, result.Message, "request failed")
}

func TestHTTPChecker_ContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := NewHTTPChecker("http://127.0.0.1:1/").Check(ctx)
	assert.False(t, result.Healthy)
}

func TestHTTPChecker_Type(t *testing.T) {
	assert.Equal(t, CheckTypeHTTP, NewHTTPChecker("http://localhost").Type())
}

func splitURL(t *testing.T, url string) (string, int) {
	t.Helper()
	hostport := strings.TrimPrefix(url, "http://")
	i := strings.LastIndex(hostport, ":")
	require.Positive(t, i)
	port, err := strconv.Atoi(hostport[i+1:])
	require.NoError(t, err)
	return hostport[:i], port
}
