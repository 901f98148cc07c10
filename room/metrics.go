/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package room

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	roomsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pangrum_sync_rooms_active",
		Help: "Number of room actors currently held in memory",
	})

	connectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pangrum_sync_connections_active",
		Help: "Number of open device connections across all rooms",
	})

	messagesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pangrum_sync_messages_received_total",
		Help: "Frames received from devices, by message type",
	}, []string{"type"})

	messagesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pangrum_sync_messages_dropped_total",
		Help: "Frames ignored because they were malformed or of an unexpected type",
	})

	wordsMerged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pangrum_sync_words_merged_total",
		Help: "Words newly added to room state",
	})
)
