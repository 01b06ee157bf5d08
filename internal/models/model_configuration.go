package models

import "time"

// ModelConfiguration selects the completion backend. At most one row is active.
type ModelConfiguration struct {
	ID               int64     `json:"id"`
	Provider         string    `json:"provider"`
	Model            string    `json:"model"`
	StreamingEnabled bool      `json:"streaming_enabled"`
	EndpointOverride string    `json:"endpoint_override"`
	APIKey           string    `json:"-"`
	HasAPIKey        bool      `json:"has_api_key"`
	WebSearch        bool      `json:"web_search"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (c ModelConfiguration) String() string {
	return c.Provider + ":" + c.Model
}
