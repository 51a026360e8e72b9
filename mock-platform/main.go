package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"
)

// Sends a scripted subscription lifecycle at the pipeline's ingest endpoint:
// purchase, renewal, a duplicate delivery of the renewal, grace period, one
// deliberately illegal transition that should land in the dead letter queue,
// then recovery and expiry.
func main() {
	target := "http://localhost:8080/api/v1/notifications"
	if t := os.Getenv("TARGET_URL"); t != "" {
		target = t
	}

	txID := fmt.Sprintf("tx-%d", time.Now().Unix())
	now := time.Now().UTC()
	expires := now.Add(30 * 24 * time.Hour)

	steps := []struct {
		name  string
		notif map[string]any
	}{
		{"initial purchase", notification(txID, "notif-1-"+txID, "SUBSCRIBED", "active", now, expires)},
		{"renewal", notification(txID, "notif-2-"+txID, "DID_RENEW", "active", now, expires.Add(30*24*time.Hour))},
		{"duplicate renewal delivery", notification(txID, "notif-2-"+txID, "DID_RENEW", "active", now, expires.Add(30*24*time.Hour))},
		{"billing issue", notification(txID, "notif-3-"+txID, "GRACE_PERIOD", "in_grace_period", now, expires)},
		// in_grace_period -> revoked is not a legal transition; this one
		// should come back as failed and show up in the DLQ.
		{"illegal transition", notification(txID, "notif-4-"+txID, "REVOKE", "revoked", now, expires)},
		{"recovered", notification(txID, "notif-5-"+txID, "DID_RENEW", "active", now, expires.Add(30*24*time.Hour))},
		{"expired", notification(txID, "notif-6-"+txID, "EXPIRED", "expired", now, expires)},
	}

	log.Printf("Posting lifecycle for %s to %s", txID, target)

	for _, step := range steps {
		status, outcome := post(target, step.notif)
		log.Printf("  %-28s -> %d %s", step.name, status, outcome)
		time.Sleep(200 * time.Millisecond)
	}
}

func notification(txID, notifID, notifType, status string, purchase, expires time.Time) map[string]any {
	raw, _ := json.Marshal(map[string]any{
		"transactionId":    txID,
		"notificationUUID": notifID,
		"notificationType": notifType,
	})

	return map[string]any{
		"notification_id":   notifID,
		"platform":          "app_store",
		"notification_type": notifType,
		"subscription_ref":  txID,
		"raw_payload":       json.RawMessage(raw),
		"signed_date":       time.Now().UTC(),
		"subscription": map[string]any{
			"user_id":            "user-demo",
			"product_id":         "premium_monthly",
			"status":             status,
			"purchase_date":      purchase,
			"expires_date":       expires,
			"auto_renew_enabled": status == "active",
			"environment":        "sandbox",
		},
	}
}

func post(target string, notif map[string]any) (int, string) {
	body, err := json.Marshal(notif)
	if err != nil {
		log.Fatalf("failed to marshal notification: %v", err)
	}

	resp, err := http.Post(target, "application/json", bytes.NewReader(body))
	if err != nil {
		log.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		Outcome string `json:"outcome"`
		Reason  string `json:"reason"`
	}
	json.NewDecoder(resp.Body).Decode(&result)

	outcome := result.Outcome
	if result.Reason != "" {
		outcome += " (" + result.Reason + ")"
	}
	return resp.StatusCode, outcome
}
