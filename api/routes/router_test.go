package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/card-connector/api/middleware"
	"github.com/angelmondragon/card-connector/internal/cards"
	"github.com/angelmondragon/card-connector/internal/cardsync"
	"github.com/angelmondragon/card-connector/internal/operations"
	"github.com/angelmondragon/card-connector/internal/processor"
	"github.com/angelmondragon/card-connector/internal/upstream"
	"github.com/angelmondragon/card-connector/internal/webhookevents"
	"github.com/angelmondragon/card-connector/pkg/config"
	"github.com/angelmondragon/card-connector/pkg/db/dbtest"
	"github.com/angelmondragon/card-connector/pkg/logger"
	"github.com/angelmondragon/card-connector/pkg/metrics"
)

type recordingReporter struct {
	mu      sync.Mutex
	reports []upstream.Report
}

func (r *recordingReporter) Report(_ context.Context, report upstream.Report) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, report)
	return nil
}

type testServer struct {
	handler  http.Handler
	receipts webhookevents.Repository
	reporter *recordingReporter
}

func newTestServer(t *testing.T, secret string) *testServer {
	t.Helper()
	client := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	registry := prometheus.NewRegistry()
	syncMetrics := metrics.NewSyncMetrics(registry)

	cardRepo := cards.NewRepository(client.DB())
	opRepo := operations.NewRepository(client.DB())
	receipts := webhookevents.NewRepository(client.DB())
	reporter := &recordingReporter{}

	svc, err := cardsync.NewService(cardsync.ServiceParams{
		Tx:         client,
		Cards:      cardRepo,
		Operations: opRepo,
		Gateway:    processor.NewMockGateway(logg, syncMetrics),
		Reporter:   reporter,
		Metrics:    syncMetrics,
		Logger:     logg,
	})
	require.NoError(t, err)

	cfg := &config.Config{
		App:     config.AppConfig{Env: "test"},
		Webhook: config.WebhookConfig{Secret: secret, SignatureHeader: "X-Webhook-Signature"},
	}
	handler := NewRouter(cfg, logg, client, nil, registry, svc, receipts, cardRepo, opRepo)
	return &testServer{handler: handler, receipts: receipts, reporter: reporter}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	resp := httptest.NewRecorder()
	s.handler.ServeHTTP(resp, req)
	return resp
}

func TestHealthRoutes(t *testing.T) {
	srv := newTestServer(t, "")

	live := srv.do(httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, live.Code)
	assert.NotEmpty(t, live.Header().Get(middleware.CorrelationIDHeader))

	ready := srv.do(httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, ready.Code, ready.Body.String())
}

func TestWebhookToCardDetail(t *testing.T) {
	srv := newTestServer(t, "")
	body := `{"id":"evt-1","webhookId":"wh-1","event":"card.status.activation_requested","data":{"cardId":12345,"panAlias":"alias-12345"}}`

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/upstream/card", strings.NewReader(body))
	req.Header.Set(middleware.CorrelationIDHeader, "corr-42")
	resp := srv.do(req)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "corr-42", resp.Header().Get(middleware.CorrelationIDHeader))

	var ack struct {
		Data struct {
			OK      bool             `json:"ok"`
			Outcome cardsync.Outcome `json:"outcome"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &ack))
	assert.True(t, ack.Data.OK)
	assert.True(t, ack.Data.Outcome.Handled)
	require.NotNil(t, ack.Data.Outcome.ProcessorSuccess)
	assert.True(t, *ack.Data.Outcome.ProcessorSuccess)

	replay := srv.do(httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/upstream/card", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, replay.Code)
	require.NoError(t, json.Unmarshal(replay.Body.Bytes(), &ack))
	assert.True(t, ack.Data.Outcome.Duplicate)

	receipts, err := srv.receipts.ListByDelivery(context.Background(), "wh-1")
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	correlated := 0
	for _, receipt := range receipts {
		assert.True(t, receipt.Processed)
		if receipt.CorrelationID != nil && *receipt.CorrelationID == "corr-42" {
			correlated++
		}
	}
	assert.Equal(t, 1, correlated)

	detail := srv.do(httptest.NewRequest(http.MethodGet, "/api/v1/cards/12345", nil))
	require.Equal(t, http.StatusOK, detail.Code, detail.Body.String())
	var card struct {
		Data struct {
			PanAlias   string `json:"pan_alias"`
			Operations []struct {
				Status string `json:"status"`
			} `json:"operations"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(detail.Body.Bytes(), &card))
	assert.Equal(t, "alias-12345", card.Data.PanAlias)
	require.Len(t, card.Data.Operations, 1)
	assert.Equal(t, "SUCCESS", card.Data.Operations[0].Status)

	srv.reporter.mu.Lock()
	defer srv.reporter.mu.Unlock()
	assert.Len(t, srv.reporter.reports, 1)
}

func TestWebhookSignatureEnforced(t *testing.T) {
	secret := "shh"
	srv := newTestServer(t, secret)
	body := `{"webhookId":"wh-2","event":"card.blocked","data":{"cardId":12346}}`

	unsigned := srv.do(httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/upstream/card", strings.NewReader(body)))
	assert.Equal(t, http.StatusUnauthorized, unsigned.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/upstream/card", strings.NewReader(body))
	req.Header.Set("X-Webhook-Signature", middleware.Sign([]byte(secret), []byte(body)))
	signed := srv.do(req)
	assert.Equal(t, http.StatusOK, signed.Code, signed.Body.String())
}

func TestMetricsRoute(t *testing.T) {
	srv := newTestServer(t, "")
	srv.do(httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/upstream/card",
		strings.NewReader(`{"webhookId":"wh-3","event":"card.new","data":{"cardId":12347}}`)))

	resp := srv.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "card_events_total")
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(t, "")
	resp := srv.do(httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))
	assert.Equal(t, http.StatusNotFound, resp.Code)
}
