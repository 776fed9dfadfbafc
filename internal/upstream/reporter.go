package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/card-connector/internal/processor"
	"github.com/angelmondragon/card-connector/pkg/config"
	pkgerrors "github.com/angelmondragon/card-connector/pkg/errors"
	"github.com/angelmondragon/card-connector/pkg/logger"
	"github.com/angelmondragon/card-connector/pkg/metrics"
)

const (
	defaultReportTimeout        = 30 * time.Second
	defaultExpiryMonth          = 12
	defaultExpiryYears          = 3
	responseBodyReadLimit int64 = 1024
	detailProcessorCardID       = "niCardId"
	detailExpiryDate            = "expiryDate"
)

// Outcome is the verdict reported for an operation.
type Outcome string

const (
	OutcomeAccept Outcome = "accept"
	OutcomeError  Outcome = "error"
)

// Credentials supplies bearer tokens for the admin API.
type Credentials interface {
	Token(ctx context.Context) (string, error)
	Invalidate(ctx context.Context, rejected string)
}

// Report is one operation outcome sent upstream.
type Report struct {
	CardID             int64
	OperationType      string
	Outcome            Outcome
	PanAlias           string
	ProcessorReference string
	ProcessorDetails   map[string]any
}

// Reporter posts operation outcomes to the admin API.
type Reporter struct {
	httpClient       *http.Client
	baseURL          string
	pathPrefix       string
	externalIDPrefix string
	creds            Credentials
	metrics          *metrics.SyncMetrics
	logg             *logger.Logger
	now              func() time.Time
}

// Option configures optional reporter behavior.
type Option func(*Reporter)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Reporter) {
		if client != nil {
			r.httpClient = client
		}
	}
}

// WithMetrics counts reports.
func WithMetrics(m *metrics.SyncMetrics) Option {
	return func(r *Reporter) {
		r.metrics = m
	}
}

// WithLogger attaches a logger.
func WithLogger(logg *logger.Logger) Option {
	return func(r *Reporter) {
		if logg != nil {
			r.logg = logg
		}
	}
}

// WithClock overrides the clock used for default expiry dates.
func WithClock(now func() time.Time) Option {
	return func(r *Reporter) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReporter builds a reporter for the configured admin API.
func NewReporter(cfg config.UpstreamConfig, creds Credentials, opts ...Option) (*Reporter, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.AdminBaseURL), "/")
	if base == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "upstream admin base url is required")
	}
	if creds == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "upstream credentials are required")
	}
	timeout := cfg.ReportTimeout
	if timeout <= 0 {
		timeout = defaultReportTimeout
	}

	r := &Reporter{
		httpClient:       &http.Client{Timeout: timeout},
		baseURL:          base,
		pathPrefix:       normalizePrefix(cfg.ReportPathPrefix),
		externalIDPrefix: cfg.ExternalIDPrefix,
		creds:            creds,
		logg:             logger.Nop(),
		now:              time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r, nil
}

func normalizePrefix(prefix string) string {
	trimmed := strings.Trim(strings.TrimSpace(prefix), "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

type reportBody struct {
	PanAlias   string `json:"pan_alias,omitempty"`
	PanDisplay string `json:"pan_display,omitempty"`
	ExternalID string `json:"external_id"`
	ExpMonth   int    `json:"exp_month"`
	ExpYear    int    `json:"exp_year"`
}

// Report sends one operation outcome.
func (r *Reporter) Report(ctx context.Context, report Report) (err error) {
	defer func() {
		r.metrics.IncReport(string(report.Outcome), err == nil)
	}()

	if report.Outcome != OutcomeAccept && report.Outcome != OutcomeError {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unsupported report outcome %q", report.Outcome))
	}
	if strings.TrimSpace(report.OperationType) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "operation type is required")
	}

	token, err := r.creds.Token(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "acquire upstream token")
	}

	payload, err := json.Marshal(r.buildBody(report))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "marshal upstream report")
	}

	endpoint := r.reportURL(report)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build upstream report request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute upstream report request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		r.creds.Invalidate(ctx, token)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))), "upstream report failed")
	}

	ctx = r.logg.WithFields(ctx, map[string]any{
		"card_id":        report.CardID,
		"operation_type": report.OperationType,
		"outcome":        string(report.Outcome),
		"pan_display":    maskPan(r.panDisplay(report)),
	})
	r.logg.Info(ctx, "operation outcome reported upstream")
	return nil
}

func (r *Reporter) reportURL(report Report) string {
	return fmt.Sprintf("%s%s/cards/%d/operation/%s/%s",
		r.baseURL,
		r.pathPrefix,
		report.CardID,
		url.PathEscape(strings.TrimSpace(report.OperationType)),
		report.Outcome,
	)
}

func (r *Reporter) buildBody(report Report) reportBody {
	body := reportBody{
		PanAlias:   strings.TrimSpace(report.PanAlias),
		PanDisplay: r.panDisplay(report),
		ExternalID: processor.DetailString(report.ProcessorDetails, detailProcessorCardID),
	}
	if body.ExternalID == "" {
		body.ExternalID = r.externalIDPrefix + strconv.FormatInt(report.CardID, 10)
	}

	month, year, ok := parseExpiry(processor.DetailString(report.ProcessorDetails, detailExpiryDate))
	if !ok {
		month, year = defaultExpiryMonth, r.now().Year()+defaultExpiryYears
	}
	body.ExpMonth = month
	body.ExpYear = year
	return body
}

func (r *Reporter) panDisplay(report Report) string {
	if ref := strings.TrimSpace(report.ProcessorReference); ref != "" {
		return ref
	}
	if ref := processor.Reference(report.ProcessorDetails); ref != "" {
		return ref
	}
	return strings.TrimSpace(report.PanAlias)
}

// parseExpiry reads an "MM/YYYY" expiry date.
func parseExpiry(value string) (int, int, bool) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 2 {
		return 0, 0, false
	}
	month, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || month < 1 || month > 12 {
		return 0, 0, false
	}
	year, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || year <= 0 {
		return 0, 0, false
	}
	return month, year, true
}

func maskPan(pan string) string {
	if len(pan) <= 4 {
		return pan
	}
	return "***" + pan[len(pan)-4:]
}
