package app

import (
	"bytes"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRun_WithMissingEnv_ReturnsError(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	clearRequiredEnv(t)

	var buf bytes.Buffer
	if err := Run(&buf, []string{"serve"}); err == nil {
		t.Fatal("Run with missing env should return error")
	}
}

func TestRun_Serve_FailsWhenDatabaseUnreachable(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"serve"})
	if err == nil {
		t.Fatal("Run(serve) should fail without a database")
	}
	if !strings.Contains(err.Error(), "database") {
		t.Errorf("error = %q, want database-related error", err.Error())
	}
}

func TestRun_Migrate_FailsWhenDatabaseUnreachable(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	setTestEnv(t)

	var buf bytes.Buffer
	err := Run(&buf, []string{"migrate"})
	if err == nil {
		t.Fatal("Run(migrate) should fail without a database")
	}
	if strings.Contains(buf.String(), "secret") {
		t.Errorf("log output should not contain the database password: %s", buf.String())
	}
}

func TestRun_Healthcheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()

	_, port, err := net.SplitHostPort(healthy.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}
	t.Setenv("SERVER_PORT", port)

	if err := Run(&bytes.Buffer{}, []string{"healthcheck"}); err != nil {
		t.Errorf("healthcheck against healthy server error = %v", err)
	}
}

func TestRun_Healthcheck_UnhealthyStatus(t *testing.T) {
	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer unhealthy.Close()

	_, port, err := net.SplitHostPort(unhealthy.Listener.Addr().String())
	if err != nil {
		t.Fatalf("SplitHostPort() error = %v", err)
	}

	if err := runHealthcheck(port); err == nil {
		t.Error("healthcheck should fail on 503")
	}
}
