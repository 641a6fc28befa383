package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Event names carried in the envelope "event" field
const (
	EventPairingRequest  = "pairing_request"
	EventDraftSubmission = "draft_submission"

	EventPairingSuccess       = "pairing_success"
	EventPairingFailed        = "pairing_failed"
	EventAlreadyPaired        = "already_paired"
	EventErrorNotPaired       = "error_not_paired"
	EventDraftReceived        = "draft_received"
	EventSubscriptionApproved = "subscription_approved"
	EventDraftRejected        = "draft_rejected"
	EventPaymentReminder      = "payment_reminder"
	EventSubscriptionDeleted  = "subscription_deleted"
)

// Identity is the opaque remote identifier (a chat id). Older producers
// wrote it as a JSON number, so both forms are accepted on decode.
type Identity string

// NewIdentity is the single normalization point for identities read from
// envelopes or settings: surrounding whitespace is not part of the id
func NewIdentity(s string) Identity {
	return Identity(strings.TrimSpace(s))
}

func (i *Identity) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*i = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*i = NewIdentity(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*i = Identity(n.String())
	return nil
}

func (i Identity) String() string { return string(i) }

// Envelope is the pre-encryption message shape.
//
// Regular events use Event + Data. A pairing request carries Code and ChatID at
// the top level. Legacy draft submissions have no Event and flat draft fields.
type Envelope struct {
	Event  string         `json:"event,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
	Code   string         `json:"code,omitempty"`
	ChatID Identity       `json:"chat_id,omitempty"`

	RawName  string   `json:"raw_name,omitempty"`
	Amount   *float64 `json:"amount,omitempty"`
	Currency string   `json:"currency,omitempty"`
}

// NewEvent builds a {event, data} envelope
func NewEvent(event string, data map[string]any) Envelope {
	if data == nil {
		data = map[string]any{}
	}
	return Envelope{Event: event, Data: data}
}

// NewFeedback builds a ToRemote envelope routed to the given identity
func NewFeedback(event string, to Identity, fields map[string]any) Envelope {
	data := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		data[k] = v
	}
	data["chat_id"] = string(to)
	return NewEvent(event, data)
}

func NewPairingRequest(code string, from Identity) Envelope {
	return Envelope{Event: EventPairingRequest, Code: code, ChatID: from}
}

func NewDraftSubmission(from Identity, name string, amount float64, currency string) Envelope {
	return NewEvent(EventDraftSubmission, map[string]any{
		"raw_name": name,
		"amount":   amount,
		"currency": currency,
		"chat_id":  string(from),
	})
}

// Kind resolves the effective event, mapping the legacy flat form to a submission
func (e Envelope) Kind() string {
	if e.Event != "" {
		return e.Event
	}
	if e.RawName != "" || e.Amount != nil || e.Currency != "" || e.ChatID != "" {
		return EventDraftSubmission
	}
	return ""
}

// Origin returns the identity that produced (or is addressed by) the envelope
func (e Envelope) Origin() Identity {
	if e.ChatID != "" {
		return e.ChatID
	}
	return identityFrom(e.Data["chat_id"])
}

func (e Envelope) DataString(key string) string {
	switch v := e.Data[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		b, _ := json.Marshal(v)
		return strings.Trim(string(b), `"`)
	}
}

func (e Envelope) DataFloat(key string) (float64, bool) {
	switch v := e.Data[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(v), ",", "."), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// DraftInput extracts the submission fields from either envelope form
func (e Envelope) DraftInput() DraftInput {
	if e.Event == "" {
		in := DraftInput{RawName: e.RawName, Currency: e.Currency, ChatID: e.ChatID}
		if e.Amount != nil {
			in.Amount = *e.Amount
		}
		return in
	}
	amount, _ := e.DataFloat("amount")
	return DraftInput{
		RawName:  e.DataString("raw_name"),
		Amount:   amount,
		Currency: e.DataString("currency"),
		ChatID:   e.Origin(),
	}
}

func identityFrom(v any) Identity {
	switch id := v.(type) {
	case string:
		return NewIdentity(id)
	case float64:
		return Identity(strconv.FormatFloat(id, 'f', -1, 64))
	case int64:
		return Identity(strconv.FormatInt(id, 10))
	case int:
		return Identity(strconv.Itoa(id))
	case Identity:
		return NewIdentity(string(id))
	default:
		return ""
	}
}
