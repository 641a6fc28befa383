package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentity_AcceptsNumberAndString(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"event":"pairing_request","code":"111111","chat_id":123456789}`), &env))
	assert.Equal(t, Identity("123456789"), env.Origin())

	require.NoError(t, json.Unmarshal([]byte(`{"event":"pairing_request","code":"111111","chat_id":"U1"}`), &env))
	assert.Equal(t, Identity("U1"), env.Origin())
}

func TestIdentity_TrimsWhitespace(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"event":"pairing_request","code":"111111","chat_id":" U1 "}`), &env))
	assert.Equal(t, Identity("U1"), env.Origin())

	require.NoError(t, json.Unmarshal([]byte(`{"event":"draft_submission","data":{"chat_id":"U1\t","raw_name":"x"}}`), &env))
	assert.Equal(t, Identity("U1"), env.DraftInput().ChatID)
}

func TestEnvelope_OriginFromData(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"event":"draft_received","data":{"chat_id":42,"draft_id":3}}`), &env))
	assert.Equal(t, Identity("42"), env.Origin())
	assert.Equal(t, "3", env.DataString("draft_id"))
}

func TestEnvelope_LegacyDraftForm(t *testing.T) {
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"raw_name":"Netflix","amount":12.5,"currency":"USD","chat_id":7}`), &env))

	assert.Equal(t, EventDraftSubmission, env.Kind())
	in := env.DraftInput()
	assert.Equal(t, DraftInput{RawName: "Netflix", Amount: 12.5, Currency: "USD", ChatID: "7"}, in)
}

func TestEnvelope_KindEmpty(t *testing.T) {
	assert.Equal(t, "", Envelope{}.Kind())
}

func TestEnvelope_DraftInputFromEvent(t *testing.T) {
	env := NewDraftSubmission("U1", "Spotify", 4.99, "eur")
	in := env.DraftInput()
	assert.Equal(t, "Spotify", in.RawName)
	assert.Equal(t, 4.99, in.Amount)
	assert.Equal(t, Identity("U1"), in.ChatID)
}

func TestDraftInput_Normalize(t *testing.T) {
	in, err := DraftInput{RawName: "  ", Amount: 3, Currency: "eur", ChatID: "U1"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultDraftName, in.RawName)
	assert.Equal(t, "EUR", in.Currency)

	in, err = DraftInput{RawName: "Netflix"}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, DefaultDraftCurrency, in.Currency)

	_, err = DraftInput{RawName: "x", Amount: 1, Currency: "XYZW"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidPayload)

	_, err = DraftInput{RawName: "x", Amount: -1, Currency: "UAH"}.Normalize()
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestPeriod_Advance(t *testing.T) {
	base := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC), PeriodMonth.Advance(base))
	assert.Equal(t, time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), PeriodQuarter.Advance(base))
	assert.Equal(t, time.Date(2027, 1, 15, 0, 0, 0, 0, time.UTC), PeriodYear.Advance(base))

	p, err := ParsePeriod("")
	require.NoError(t, err)
	assert.Equal(t, PeriodMonth, p)

	_, err = ParsePeriod("weekly")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
