package types

import "testing"

func TestEventCloneIsIndependent(t *testing.T) {
	ev := &Event{Type: "stakepool.deposited", Attributes: map[string]string{"addr": "0x01", "amount": "5"}}
	clone := ev.Clone()
	clone.Attributes["amount"] = "6"
	if ev.Attributes["amount"] != "5" {
		t.Fatalf("clone shares attributes with original")
	}
	if clone.Account() != "0x01" {
		t.Fatalf("unexpected account %q", clone.Account())
	}
	var nilEvent *Event
	if nilEvent.Clone() != nil || nilEvent.Account() != "" {
		t.Fatalf("nil event helpers should be no-ops")
	}
}
