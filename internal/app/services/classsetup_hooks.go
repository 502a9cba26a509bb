package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yigit/classsetup/internal/app/models"
	"github.com/yigit/classsetup/internal/app/repositories"
)

// Verdict is the answer of a ValidationHook.
type Verdict struct {
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason,omitempty"`
}

// Accept is the verdict that lets a reconciliation commit.
func Accept() Verdict { return Verdict{Accepted: true} }

// Reject vetoes a reconciliation.
func Reject(reason string) Verdict { return Verdict{Reason: reason} }

// ValidationHook may veto a reconciliation after every mutation is staged.
// It is called once per reconciliation, inside the open transaction.
type ValidationHook interface {
	Validate(ctx context.Context, offering *models.Offering, summary TransactionSummary) (Verdict, error)
}

// ChangeHook is notified after a reconciliation committed. Failures are logged only.
type ChangeHook interface {
	OnChanged(ctx context.Context, offering *models.Offering, summary TransactionSummary) error
}

// ChangePublisher fans committed changes out to live subscribers of an offering.
type ChangePublisher interface {
	PublishOfferingChange(offeringID int64, summary TransactionSummary)
}

// EventCanceller keeps the events of a class in line with its cancelled flag.
type EventCanceller interface {
	CancelEvents(ctx context.Context, tx repositories.ClassSetupTx, classID int64, cancelled bool) error
}

// StoreEventCanceller flips the cancelled flag of the class's event rows in the same transaction.
type StoreEventCanceller struct{}

func (StoreEventCanceller) CancelEvents(ctx context.Context, tx repositories.ClassSetupTx, classID int64, cancelled bool) error {
	return tx.SetClassEventsCancelled(ctx, classID, cancelled)
}

// WebhookHook posts reconciliations to external HTTP endpoints. It implements
// ValidationHook and ChangeHook; either URL may be empty to disable that side.
type WebhookHook struct {
	ValidationURL string
	ChangeURL     string
	Headers       map[string]string
	Client        *http.Client
}

// NewWebhookHook creates a hook with the given timeout. headers are "Name: value" pairs.
func NewWebhookHook(validationURL, changeURL string, timeout time.Duration, headers []string) *WebhookHook {
	h := &WebhookHook{
		ValidationURL: validationURL,
		ChangeURL:     changeURL,
		Headers:       make(map[string]string),
		Client:        &http.Client{Timeout: timeout},
	}
	for _, header := range headers {
		if name, value, ok := strings.Cut(header, ":"); ok {
			h.Headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	return h
}

type webhookPayload struct {
	Event    string             `json:"event"`
	Offering *models.Offering   `json:"offering"`
	Change   TransactionSummary `json:"change"`
}

// Validate accepts on a 2xx answer whose body says {"accepted": true}.
func (h *WebhookHook) Validate(ctx context.Context, offering *models.Offering, summary TransactionSummary) (Verdict, error) {
	if h.ValidationURL == "" {
		return Accept(), nil
	}
	resp, body, err := h.post(ctx, h.ValidationURL, webhookPayload{Event: "validate", Offering: offering, Change: summary})
	if err != nil {
		return Verdict{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Reject(fmt.Sprintf("validation endpoint answered %s", resp.Status)), nil
	}
	var v Verdict
	if err := json.Unmarshal(body, &v); err != nil {
		return Reject("validation endpoint returned an unreadable verdict"), nil
	}
	if !v.Accepted && v.Reason == "" {
		v.Reason = "rejected by validation endpoint"
	}
	return v, nil
}

// OnChanged posts the committed change.
func (h *WebhookHook) OnChanged(ctx context.Context, offering *models.Offering, summary TransactionSummary) error {
	if h.ChangeURL == "" {
		return nil
	}
	resp, _, err := h.post(ctx, h.ChangeURL, webhookPayload{Event: "changed", Offering: offering, Change: summary})
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("change endpoint answered %s", resp.Status)
	}
	return nil
}

func (h *WebhookHook) post(ctx context.Context, url string, payload webhookPayload) (*http.Response, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range h.Headers {
		req.Header.Set(k, v)
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("webhook %s failed: %w", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read webhook response: %w", err)
	}
	return resp, body, nil
}
