package model

import "time"

// RunStatus represents the current state of a discovery run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Prospect represents a business lead discovered from OpenStreetMap.
// OSMID is the source's stable identifier and the dedup key; Email is
// unique across all prospects when present. Optional fields are empty
// strings when the source tag was absent.
type Prospect struct {
	ID             int64     `json:"id"`
	OSMID          int64     `json:"osm_id"`
	Name           string    `json:"name,omitempty"`
	Category       string    `json:"category,omitempty"`
	Email          string    `json:"email,omitempty"`
	Phone          string    `json:"phone,omitempty"`
	Website        string    `json:"website,omitempty"`
	Address        string    `json:"address,omitempty"`
	Postcode       string    `json:"postcode,omitempty"`
	City           string    `json:"city,omitempty"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	HasWebsite     bool      `json:"has_website"`
	EmailValidated bool      `json:"email_validated"`
	Contacted      bool      `json:"contacted"`
	ScrapedAt      time.Time `json:"scraped_at"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Run represents a single discovery run over one or more areas.
type Run struct {
	ID          string     `json:"id"`
	Areas       []string   `json:"areas"`
	Status      RunStatus  `json:"status"`
	Fetched     int64      `json:"fetched"`
	Inserted    int64      `json:"inserted"`
	Known       int64      `json:"known"`
	Rejected    int64      `json:"rejected"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
