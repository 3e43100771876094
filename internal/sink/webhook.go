package sink

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/ppiankov/painpoint/internal/logging"
)

// SignatureHeader carries the HMAC of the request body.
const SignatureHeader = "X-Webhook-Signature"

// Signer computes body signatures with a shared secret.
type Signer struct {
	secretKey []byte
}

// NewSigner creates a signer for secret.
func NewSigner(secret string) *Signer {
	return &Signer{secretKey: []byte(secret)}
}

// Sign returns "sha256=<hex hmac>" for body.
func (s *Signer) Sign(body []byte) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write(body)
	return "sha256=" + hex.EncodeToString(h.Sum(nil))
}

// Verify checks a signature header value against body.
func (s *Signer) Verify(body []byte, signature string) bool {
	return hmac.Equal([]byte(s.Sign(body)), []byte(signature))
}

// Payload is the webhook request body.
type Payload struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	RunID     string    `json:"run_id,omitempty"`
	BatchInfo BatchInfo `json:"batch_info"`
	Data      Data      `json:"data"`
	Summary   Summary   `json:"summary"`
}

type BatchInfo struct {
	BatchNumber  int `json:"batch_number"`
	TotalBatches int `json:"total_batches"`
	BatchSize    int `json:"batch_size"`
	TotalRecords int `json:"total_records"`
}

type Data struct {
	Companies   []CompanyEntry `json:"companies"`
	PainSignals []SignalEntry  `json:"pain_signals"`
}

type CompanyEntry struct {
	CompanyName string    `json:"company_name"`
	Domain      string    `json:"domain"`
	DataSource  string    `json:"data_source"`
	LastUpdated time.Time `json:"last_updated"`
}

type SignalEntry struct {
	CompanyName        string         `json:"company_name"`
	Domain             string         `json:"domain"`
	SignalType         string         `json:"signal_type"`
	SignalDate         string         `json:"signal_date,omitempty"`
	SignalStrength     float64        `json:"signal_strength"`
	RawData            map[string]any `json:"raw_data,omitempty"`
	Source             string         `json:"source"`
	EnrichmentPriority float64        `json:"enrichment_priority"`
	CampaignType       string         `json:"campaign_type"`
}

type Summary struct {
	BatchSignals int      `json:"batch_signals"`
	Sources      []string `json:"sources"`
	SignalTypes  []string `json:"signal_types"`
}

// WebhookSink posts signed JSON batches to an HTTP endpoint.
type WebhookSink struct {
	url        string
	signer     *Signer
	httpClient *http.Client
	userAgent  string
	logger     *slog.Logger
	now        func() time.Time
}

// NewWebhookSink creates a webhook sink. An empty secret sends unsigned
// requests.
func NewWebhookSink(url, secret string, timeout time.Duration, userAgent string, logger *slog.Logger) *WebhookSink {
	w := &WebhookSink{
		url:        url,
		httpClient: &http.Client{Timeout: timeout},
		userAgent:  userAgent,
		logger:     logging.OrDefault(logger),
		now:        time.Now,
	}
	if secret != "" {
		w.signer = NewSigner(secret)
	}
	return w
}

func (w *WebhookSink) Name() string { return "webhook" }

// Deliver posts one batch. Anything but 2xx is a *DeliveryError.
func (w *WebhookSink) Deliver(ctx context.Context, batch Batch) error {
	body, err := json.Marshal(w.buildPayload(batch))
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}
	if w.signer != nil {
		req.Header.Set(SignatureHeader, w.signer.Sign(body))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return &DeliveryError{Sink: w.Name(), StatusCode: resp.StatusCode, Body: string(snippet)}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	w.logger.Info("batch delivered",
		slog.Int("batch", batch.Number),
		slog.Int("total_batches", batch.Total),
		logging.Count(len(batch.Signals)))
	return nil
}

func (w *WebhookSink) buildPayload(batch Batch) Payload {
	now := w.now().UTC()

	p := Payload{
		EventType: "pain_signal_collection",
		Timestamp: now,
		Source:    "painpoint",
		RunID:     batch.RunID,
		BatchInfo: BatchInfo{
			BatchNumber:  batch.Number,
			TotalBatches: batch.Total,
			BatchSize:    len(batch.Signals),
			TotalRecords: batch.TotalRecords,
		},
		Data: Data{
			Companies:   []CompanyEntry{},
			PainSignals: make([]SignalEntry, 0, len(batch.Signals)),
		},
	}

	seenDomain := make(map[string]bool)
	sources := make(map[string]bool)
	types := make(map[string]bool)
	for _, s := range batch.Signals {
		if !seenDomain[s.Domain] {
			seenDomain[s.Domain] = true
			p.Data.Companies = append(p.Data.Companies, CompanyEntry{
				CompanyName: s.CompanyName,
				Domain:      s.Domain,
				DataSource:  s.Source,
				LastUpdated: now,
			})
		}

		entry := SignalEntry{
			CompanyName:        s.CompanyName,
			Domain:             s.Domain,
			SignalType:         string(s.SignalType),
			SignalStrength:     s.SignalStrength,
			RawData:            s.RawData,
			Source:             s.Source,
			EnrichmentPriority: s.SignalType.Priority(),
			CampaignType:       s.SignalType.Campaign(),
		}
		if s.Dated() {
			entry.SignalDate = s.SignalDate.UTC().Format(time.RFC3339)
		}
		p.Data.PainSignals = append(p.Data.PainSignals, entry)

		sources[s.Source] = true
		types[string(s.SignalType)] = true
	}

	p.Summary = Summary{
		BatchSignals: len(batch.Signals),
		Sources:      sortedKeys(sources),
		SignalTypes:  sortedKeys(types),
	}
	return p
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
