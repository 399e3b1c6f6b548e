package types

// AccountAttribute names the attribute carrying the account an event concerns.
const AccountAttribute = "addr"

// Event is the rendered form of a ledger event as persisted and streamed.
type Event struct {
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// Account returns the account attribute, or "" for pool-wide events.
func (e *Event) Account() string {
	if e == nil {
		return ""
	}
	return e.Attributes[AccountAttribute]
}

// Clone returns a deep copy so receivers can hold the event independently.
func (e *Event) Clone() *Event {
	if e == nil {
		return nil
	}
	out := &Event{Type: e.Type, Attributes: make(map[string]string, len(e.Attributes))}
	for k, v := range e.Attributes {
		out.Attributes[k] = v
	}
	return out
}
