package models

import "time"

type UsageLogEntry struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Action        Feature           `json:"action"`
	ProcessedItem string            `json:"processedItem,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}
