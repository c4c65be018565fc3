package models

import "time"

// Issuance records a client certificate minted for a username together with
// the config file distributed for it.
type Issuance struct {
	ID          int64     `json:"id"`
	Username    string    `json:"username"`
	ConfigPath  string    `json:"config_path,omitempty"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Serial      string    `json:"serial,omitempty"`
	ValidTo     time.Time `json:"valid_to"`
	Partial     bool      `json:"partial"`
	IssuedAt    time.Time `json:"issued_at"`
}
