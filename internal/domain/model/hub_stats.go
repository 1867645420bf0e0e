package model

import "time"

type HubStats struct {
	Topics        int           `json:"topics"`
	Subscriptions int           `json:"subscriptions"`
	Published     uint64        `json:"published"`
	Dropped       uint64        `json:"dropped"`
	Disconnected  uint64        `json:"disconnected"`
	Uptime        time.Duration `json:"uptime"`
	PerTopic      []TopicStats  `json:"per_topic,omitempty"`
}

type TopicStats struct {
	Topic         string `json:"topic"`
	Subscriptions int    `json:"subscriptions"`
}
