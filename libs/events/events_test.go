package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestNotificationRequestedValidate(t *testing.T) {
	ok := NotificationRequested{RecipientID: 1, RecipientRole: "citizen", Message: "hi", Type: "match_found"}
	if err := ok.Validate(); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	missing := ok
	missing.Message = ""
	if err := missing.Validate(); err == nil {
		t.Fatal("expected error for empty message")
	}
}

func TestEmailRequestedWireFormat(t *testing.T) {
	e := EmailRequested{
		Kind:        EmailCancellation,
		To:          "a@example.org",
		Counterpart: "Citizen",
		Reason:      "conflict of interest",
		RequestedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
	}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["kind"] != "cancellation" || m["reason"] != "conflict of interest" {
		t.Fatalf("unexpected payload %s", raw)
	}
	if _, ok := m["appointment_id"]; ok {
		t.Fatalf("empty appointment_id should be omitted: %s", raw)
	}
	if err := (EmailRequested{Kind: "sms", To: "x"}).Validate(); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}
