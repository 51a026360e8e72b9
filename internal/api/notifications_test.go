package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Priya8975/subscription-event-pipeline/internal/processor"
)

type fakeProcessor struct {
	result processor.Result
	last   *processor.Notification
}

func (f *fakeProcessor) ProcessEvent(ctx context.Context, n processor.Notification) processor.Result {
	f.last = &n
	return f.result
}

func ingestRequest(t *testing.T, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	return httptest.NewRequest(http.MethodPost, "/api/v1/notifications", bytes.NewReader(data))
}

func sampleNotification() processor.Notification {
	return processor.Notification{
		NotificationID:   "notif-1",
		Platform:         "app_store",
		NotificationType: "DID_RENEW",
		SubscriptionRef:  "tx-1",
		RawPayload:       json.RawMessage(`{"transactionId":"tx-1"}`),
		SignedDate:       time.Now().UTC(),
		Subscription: &processor.SubscriptionFields{
			Status:           "active",
			AutoRenewEnabled: true,
		},
	}
}

func TestIngest_Success(t *testing.T) {
	fp := &fakeProcessor{result: processor.Result{
		Outcome:        processor.OutcomeSuccess,
		EventID:        "evt-1",
		SubscriptionID: "sub-1",
	}}
	h := NewNotificationHandler(fp)

	rec := httptest.NewRecorder()
	h.Ingest(rec, ingestRequest(t, sampleNotification()))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Outcome != processor.OutcomeSuccess {
		t.Errorf("outcome = %q, want %q", resp.Outcome, processor.OutcomeSuccess)
	}
	if resp.EventID != "evt-1" || resp.SubscriptionID != "sub-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestIngest_DuplicateAcknowledged(t *testing.T) {
	// A duplicate must look exactly like a success to the platform so it
	// stops redelivering.
	fp := &fakeProcessor{result: processor.Result{
		Outcome: processor.OutcomeAlreadyProcessed,
		EventID: "evt-1",
	}}
	h := NewNotificationHandler(fp)

	rec := httptest.NewRecorder()
	h.Ingest(rec, ingestRequest(t, sampleNotification()))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestIngest_FailureReturns500(t *testing.T) {
	fp := &fakeProcessor{result: processor.Result{
		Outcome: processor.OutcomeFailed,
		EventID: "evt-1",
		Reason:  "illegal status transition",
	}}
	h := NewNotificationHandler(fp)

	rec := httptest.NewRecorder()
	h.Ingest(rec, ingestRequest(t, sampleNotification()))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusInternalServerError)
	}

	var resp ingestResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Reason == "" {
		t.Error("failed response should carry the reason")
	}
}

func TestIngest_RejectsMalformedBody(t *testing.T) {
	fp := &fakeProcessor{}
	h := NewNotificationHandler(fp)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", bytes.NewReader([]byte(`{not json`)))
	rec := httptest.NewRecorder()
	h.Ingest(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if fp.last != nil {
		t.Error("processor must not run on malformed input")
	}
}

func TestIngest_RequiresPlatform(t *testing.T) {
	fp := &fakeProcessor{}
	h := NewNotificationHandler(fp)

	n := sampleNotification()
	n.Platform = ""

	rec := httptest.NewRecorder()
	h.Ingest(rec, ingestRequest(t, n))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestIngest_RequiresValidRawPayload(t *testing.T) {
	fp := &fakeProcessor{}
	h := NewNotificationHandler(fp)

	body := map[string]any{
		"notification_id":   "notif-1",
		"platform":          "app_store",
		"notification_type": "DID_RENEW",
	}

	rec := httptest.NewRecorder()
	h.Ingest(rec, ingestRequest(t, body))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if fp.last != nil {
		t.Error("processor must not run without a payload")
	}
}

func TestIngest_DefaultsSignedDate(t *testing.T) {
	fp := &fakeProcessor{result: processor.Result{Outcome: processor.OutcomeSuccess}}
	h := NewNotificationHandler(fp)

	n := sampleNotification()
	n.SignedDate = time.Time{}

	rec := httptest.NewRecorder()
	h.Ingest(rec, ingestRequest(t, n))

	if fp.last == nil {
		t.Fatal("processor was not called")
	}
	if fp.last.SignedDate.IsZero() {
		t.Error("missing signed_date should be defaulted, not passed through zero")
	}
}
