package middleware

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/angelmondragon/card-connector/pkg/logger"
)

func TestCorrelationIDPrecedence(t *testing.T) {
	cases := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"correlation header", map[string]string{"X-Correlation-ID": "corr", "X-Request-ID": "req"}, "corr"},
		{"request id", map[string]string{"X-Request-ID": "req", "X-Trace-ID": "trace"}, "req"},
		{"trace id", map[string]string{"X-Trace-ID": "trace"}, "trace"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := CorrelationID(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = CorrelationIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen != tc.want {
				t.Fatalf("expected %q in context, got %q", tc.want, seen)
			}
			if got := rec.Header().Get(CorrelationIDHeader); got != tc.want {
				t.Fatalf("expected echoed header %q, got %q", tc.want, got)
			}
		})
	}
}

func TestCorrelationIDGenerated(t *testing.T) {
	var seen string
	h := CorrelationID(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = CorrelationIDFromContext(r.Context())
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == "" || rec.Header().Get(CorrelationIDHeader) != seen {
		t.Fatalf("expected generated correlation id, got %q / %q", seen, rec.Header().Get(CorrelationIDHeader))
	}
}

func TestWebhookSignature(t *testing.T) {
	secret := "shh"
	body := `{"event":"card.new"}`
	echo := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_, _ = w.Write(raw)
	})
	h := WebhookSignature(secret, "X-Webhook-Signature", logger.Nop())(echo)

	cases := []struct {
		name      string
		signature string
		status    int
	}{
		{"valid", Sign([]byte(secret), []byte(body)), http.StatusOK},
		{"prefixed", "sha256=" + Sign([]byte(secret), []byte(body)), http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"wrong", Sign([]byte("other"), []byte(body)), http.StatusUnauthorized},
		{"not hex", "zz", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
			if tc.signature != "" {
				req.Header.Set("X-Webhook-Signature", tc.signature)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.status == http.StatusOK && rec.Body.String() != body {
				t.Fatalf("body not replayed to handler: %q", rec.Body.String())
			}
		})
	}
}

func TestWebhookSignatureDisabledWithoutSecret(t *testing.T) {
	called := false
	h := WebhookSignature("", "X-Webhook-Signature", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{}")))
	if !called {
		t.Fatalf("expected handler to run without a configured secret")
	}
}

func TestRecovererWritesInternalError(t *testing.T) {
	h := Recoverer(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var payload struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Error.Code != "INTERNAL_ERROR" {
		t.Fatalf("unexpected code %q", payload.Error.Code)
	}
}

func TestLoggingRecordsStatus(t *testing.T) {
	h := Logging(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
}
