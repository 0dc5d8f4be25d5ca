package pathchooser

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/choose-path" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestChoose(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tests := []struct {
		name     string
		status   int
		body     string
		expected string
		wantErr  error
	}{
		{"path", http.StatusOK, `{"path":"/home/me/Videos"}`, "/home/me/Videos", nil},
		{"default", http.StatusOK, `{"path":"Default"}`, "Default", nil},
		{"empty", http.StatusOK, `{}`, "Default", nil},
		{"server error", http.StatusInternalServerError, ``, "", ErrUnexpectedStatus},
	}

	for _, test := range tests {
		srv := newServer(t, test.status, test.body)
		c := New(srv.URL+"/api/choose-path", srv.Client(), logger)
		got, err := c.Choose(context.Background())
		if test.wantErr != nil {
			if !errors.Is(err, test.wantErr) {
				t.Errorf("%s: error = %v, expected %v", test.name, err, test.wantErr)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error %v", test.name, err)
			continue
		}
		if got != test.expected {
			t.Errorf("%s: Choose() = %q, expected %q", test.name, got, test.expected)
		}
	}
}

func TestChooseMalformed(t *testing.T) {
	srv := newServer(t, http.StatusOK, `not json`)
	c := New(srv.URL+"/api/choose-path", nil, nil)
	if _, err := c.Choose(context.Background()); err == nil {
		t.Error("expected decode error")
	}
}
