package logging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/zonedispatch/core/model"
)

func TestSummarizeZones(t *testing.T) {
	base := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	at := func(s int) time.Time { return base.Add(time.Duration(s) * time.Second) }
	records := []LogRecord{
		{Timestamp: at(0), Event: EventTaskCreated, TaskID: "t1", Zone: "lobby"},
		{Timestamp: at(1), Event: EventTaskAssigned, TaskID: "t1", WorkerID: "w1"},
		{Timestamp: at(11), Event: EventTaskAck, TaskID: "t1", WorkerID: "w1"},
		{Timestamp: at(101), Event: EventTaskComplete, TaskID: "t1", WorkerID: "w1"},
		{Timestamp: at(2), Event: EventTaskCreated, TaskID: "t2", Zone: "lobby"},
		{Timestamp: at(3), Event: EventTaskAssigned, TaskID: "t2", WorkerID: "w2"},
		{Timestamp: at(4), Event: EventWorkerBusy, TaskID: "t2", WorkerID: "w2"},
		{Timestamp: at(5), Event: EventTaskAssigned, TaskID: "t2", WorkerID: "w3"},
		{Timestamp: at(25), Event: EventTaskAck, TaskID: "t2", WorkerID: "w3"},
		{Timestamp: at(6), Event: EventTaskCreated, TaskID: "t3", Zone: "elsewhere"},
	}
	zones := []model.Zone{{ID: "lobby", Name: "Lobby"}, {ID: "spa", Name: "Spa"}}

	got := SummarizeZones(records, zones)
	require.Len(t, got, 2)

	lobby := got[0]
	assert.Equal(t, model.ZoneID("lobby"), lobby.Zone)
	assert.Equal(t, 2, lobby.Volume)
	assert.Equal(t, 1, lobby.Reroutes)
	require.NotNil(t, lobby.AvgResponseSeconds)
	assert.Equal(t, 15, *lobby.AvgResponseSeconds)
	require.NotNil(t, lobby.AvgCompleteSeconds)
	assert.Equal(t, 100, *lobby.AvgCompleteSeconds)

	spa := got[1]
	assert.Equal(t, "Spa", spa.Name)
	assert.Zero(t, spa.Volume)
	assert.Nil(t, spa.AvgResponseSeconds)
	assert.Nil(t, spa.AvgCompleteSeconds)
}
