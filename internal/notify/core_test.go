package notify

import (
	"context"
	"testing"
)

// These two event kinds return before Core ever touches Prefs/Projects/Bus,
// so a zero-value Core can exercise the routing without a live database or
// NATS connection.

func TestCore_Handle_UnknownEventType(t *testing.T) {
	var c Core
	err := c.Handle(context.Background(), []byte(`{"event_type":"something_new"}`))
	if err != nil {
		t.Errorf("Handle() = %v, want nil for unknown event_type", err)
	}
}

func TestCore_Handle_LegacyLowBattery(t *testing.T) {
	var c Core
	err := c.Handle(context.Background(), []byte(`{"event_type":"low_battery"}`))
	if err != nil {
		t.Errorf("Handle() = %v, want nil for legacy low_battery", err)
	}
}

func TestCore_Handle_MalformedPayload(t *testing.T) {
	var c Core
	err := c.Handle(context.Background(), []byte(`not json`))
	if err == nil {
		t.Error("Handle() = nil, want error for malformed payload")
	}
}
