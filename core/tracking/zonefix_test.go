package tracking

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/zonedispatch/core/model"
)

func TestApplyZoneFix_TaskTruthWindow(t *testing.T) {
	done := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	taskState := func() model.WorkerState {
		return model.WorkerState{CurrentZone: "L3-E", ZoneConfidence: 1, ZoneSource: model.SourceTask, ZoneUpdatedAt: done}
	}
	cases := []struct {
		name    string
		after   time.Duration
		source  model.ZoneSource
		applied bool
	}{
		{"wifi just after task", 59 * time.Second, model.SourceWiFiRSSI, false},
		{"wifi at window edge", 60 * time.Second, model.SourceWiFiRSSI, true},
		{"wifi long after", 5 * time.Minute, model.SourceWiFiWKNN, true},
		{"next task inside window", time.Second, model.SourceTask, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := taskState()
			ok, reason := ApplyZoneFix(&st, ZoneFix{Zone: "L1-LOBBY", Confidence: 0.7, Source: tc.source, At: done.Add(tc.after)}, DefaultTaskTruthWindow)
			assert.Equal(t, tc.applied, ok)
			if tc.applied {
				assert.Equal(t, model.ZoneID("L1-LOBBY"), st.CurrentZone)
				assert.Equal(t, tc.source, st.ZoneSource)
				assert.Empty(t, reason)
			} else {
				assert.Equal(t, RejectTaskTruth, reason)
				assert.Equal(t, model.ZoneID("L3-E"), st.CurrentZone)
			}
		})
	}
}

func TestApplyZoneFix_OutOfOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	st := model.WorkerState{CurrentZone: "L3-E", ZoneSource: model.SourceTask, ZoneConfidence: 1, ZoneUpdatedAt: now}

	// A scan taken before the task completed arrives late.
	ok, reason := ApplyZoneFix(&st, ZoneFix{Zone: "L1-LOBBY", Confidence: 0.95, Source: model.SourceWiFiRSSI, At: now.Add(-90 * time.Second)}, DefaultTaskTruthWindow)
	assert.False(t, ok)
	assert.Equal(t, RejectStale, reason)
	assert.Equal(t, model.ZoneID("L3-E"), st.CurrentZone)
	assert.Equal(t, now, st.ZoneUpdatedAt)
}

func TestApplyZoneFix_FirstFixAndPosition(t *testing.T) {
	var st model.WorkerState
	at := time.Unix(1000, 0)
	ok, _ := ApplyZoneFix(&st, ZoneFix{Zone: "L2-W", Confidence: 0.6, Source: model.SourceWiFiWKNN, At: at, HasPosition: true, X: 3, Y: 4}, DefaultTaskTruthWindow)
	assert.True(t, ok)
	assert.Equal(t, at, st.ZoneUpdatedAt)
	assert.Equal(t, 3.0, st.PositionX)
	assert.Equal(t, 4.0, st.PositionY)

	ok, reason := ApplyZoneFix(&st, ZoneFix{Source: model.SourceWiFi, At: at.Add(time.Second)}, DefaultTaskTruthWindow)
	assert.False(t, ok)
	assert.Equal(t, RejectNoZone, reason)
}

func TestConfidenceSteps(t *testing.T) {
	assert.Equal(t, 0.95, RSSIConfidence(-45))
	assert.Equal(t, 0.85, RSSIConfidence(-50))
	assert.Equal(t, 0.85, RSSIConfidence(-64))
	assert.Equal(t, 0.70, RSSIConfidence(-65))
	assert.Equal(t, 0.50, RSSIConfidence(-75))
	assert.Equal(t, 0.50, RSSIConfidence(-89))

	assert.Equal(t, 0.95, VoteConfidence(1))
	assert.Equal(t, 0.5, VoteConfidence(0))
	assert.InDelta(t, 0.725, VoteConfidence(0.5), 1e-9)
}
