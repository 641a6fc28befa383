package service

import (
	"context"
	"errors"
	"testing"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/processor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutbound_DeliversAndConsumes(t *testing.T) {
	h := newHarness(t)
	h.push(models.ToRemote, models.NewFeedback(models.EventPairingSuccess, "U1", nil))
	h.push(models.ToRemote, models.NewFeedback(models.EventDraftReceived, "U1", map[string]any{"draft_id": 4, "name": "Netflix"}))

	fake := &recordingNotifier{}
	report, err := NewOutboundDrain(h.store, fake, 5, h.logger).ProcessNextBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Outcomes["delivered"])
	require.Len(t, fake.sent, 2)
	assert.Equal(t, models.EventPairingSuccess, fake.sent[0].Event)
	assert.Equal(t, models.Identity("U1"), fake.sent[1].To)
	assert.Contains(t, fake.sent[1].Text, "Netflix")
	assert.Zero(t, h.count(models.ToRemote))
}

func TestOutbound_DeliveryFailureStillConsumes(t *testing.T) {
	h := newHarness(t)
	h.push(models.ToRemote, models.NewFeedback(models.EventPairingFailed, "U1", nil))

	fake := &recordingNotifier{fail: errors.New("chat not found")}
	report, err := NewOutboundDrain(h.store, fake, 5, h.logger).ProcessNextBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.Outcomes["delivery_failed"])
	assert.Zero(t, h.count(models.ToRemote))
	assert.Empty(t, h.deadLetters())
}

func TestOutbound_PoisonAndUnroutable(t *testing.T) {
	h := newHarness(t)
	h.pushRaw(models.ToRemote, "garbage")
	h.push(models.ToRemote, models.NewFeedback("mystery", "U1", nil))
	h.push(models.ToRemote, models.NewEvent(models.EventSubscriptionDeleted, map[string]any{"name": "Old"}))

	fake := &recordingNotifier{}
	report, err := NewOutboundDrain(h.store, fake, 5, h.logger).ProcessNextBatch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, report.Outcomes[processor.OutcomeDeadLetter])
	assert.Equal(t, 1, report.Outcomes["skipped"])
	assert.Empty(t, fake.sent)
	assert.Zero(t, h.count(models.ToRemote))
	assert.Len(t, h.deadLetters(), 2)
}

func TestOutbound_IgnoresDesktopDirection(t *testing.T) {
	h := newHarness(t)
	h.push(models.ToDesktop, models.NewPairingRequest("123456", "U1"))

	fake := &recordingNotifier{}
	report, err := NewOutboundDrain(h.store, fake, 5, h.logger).ProcessNextBatch(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.Messages)
	assert.Equal(t, 1, h.count(models.ToDesktop))
}

func TestRoundTrip_DesktopToBot(t *testing.T) {
	h := newHarness(t)
	h.set(models.SettingPairingCode, "482913")
	h.push(models.ToDesktop, models.NewPairingRequest("482913", "U1"))
	h.push(models.ToDesktop, models.NewDraftSubmission("U1", "Netflix", 250, "UAH"))

	h.drainInbound()

	fake := &recordingNotifier{}
	_, err := NewOutboundDrain(h.store, fake, 5, h.logger).ProcessNextBatch(context.Background())
	require.NoError(t, err)

	require.Len(t, fake.sent, 2)
	assert.Equal(t, models.EventPairingSuccess, fake.sent[0].Event)
	assert.Equal(t, models.EventDraftReceived, fake.sent[1].Event)
	for _, n := range fake.sent {
		assert.Equal(t, models.Identity("U1"), n.To)
	}
}
