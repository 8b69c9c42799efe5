package irrigation_controller

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/entities"
	"github.com/LeonardoBeccarini/zone_irrigation/internal/model/messages"
)

func TestDispatcherIssuePublishesAndUpdatesState(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, DispatcherConfig{}, nil, nil)
	s := NewZoneStore(10, nil)

	var evt messages.CommandEvent
	var err error
	s.Update("z1", func(z *Zone) {
		evt, err = d.Issue(z, entities.StateOn, messages.SourceManual, "", 80, nil)
	})
	require.NoError(t, err)
	assert.True(t, evt.Delivered)
	assert.Equal(t, 1, evt.Order)

	sent := pub.sent()
	require.Len(t, sent, 1)
	assert.Equal(t, published{topic: "chrab/z1/cmd", qos: 1, retained: false, payload: "1"}, sent[0])

	snap := s.Get("z1")
	assert.Equal(t, entities.StateOn, snap.Actuator)
	require.NotNil(t, snap.LastCommand)
	assert.Equal(t, messages.SourceManual, snap.LastCommand.Source)
}

func TestDispatcherFailureKeepsState(t *testing.T) {
	pub := &fakePublisher{err: errBrokerDown}
	d := NewDispatcher(pub, DispatcherConfig{CmdTopicTemplate: "site/{zone}/pump"}, nil, nil)
	s := NewZoneStore(10, nil)

	var evt messages.CommandEvent
	var err error
	s.Update("z9", func(z *Zone) {
		evt, err = d.Issue(z, entities.StateOn, messages.SourceAuto, "hysteresis", 90, nil)
	})
	assert.ErrorIs(t, err, ErrDeliveryUncertain)
	assert.True(t, IsDeliveryUncertain(err))
	assert.False(t, evt.Delivered)
	assert.Equal(t, entities.StateOn, s.Get("z9").Actuator)
}

func TestDispatcherBreakerOpensAfterFailures(t *testing.T) {
	pub := &fakePublisher{err: errBrokerDown}
	d := NewDispatcher(pub, DispatcherConfig{}, nil, nil)
	s := NewZoneStore(10, nil)
	for i := 0; i < 6; i++ {
		s.Update("z1", func(z *Zone) { _, _ = d.Issue(z, entities.StateOff, messages.SourceManual, "", 0, nil) })
	}
	assert.Equal(t, "open", d.BreakerState().String())
}

func TestDispatcherConfigureSamplingClamps(t *testing.T) {
	pub := &fakePublisher{}
	d := NewDispatcher(pub, DispatcherConfig{}, nil, nil)

	tests := []struct{ in, want int }{{100, 500}, {2000, 2000}, {60000, 10000}}
	for _, tt := range tests {
		got, err := d.ConfigureSampling("z1", tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
	sent := pub.sent()
	require.Len(t, sent, 3)
	assert.Equal(t, "chrab/z1/cfg", sent[0].topic)
	assert.JSONEq(t, `{"SAMPLE_MS":500}`, sent[0].payload)
	assert.Equal(t, byte(1), sent[0].qos)

	_, err := d.ConfigureSampling("", 1000)
	assert.ErrorIs(t, err, ErrInvalidParameter)
}
