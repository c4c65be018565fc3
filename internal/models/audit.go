package models

import "time"

// AuditLog represents an audit log entry.
// Actor identifies who triggered the action (telegram user id, client ip or
// local user), Source the transport it came through, and Stage the pipeline
// step that failed, if any.
type AuditLog struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Username  string    `json:"username,omitempty"`
	Actor     string    `json:"actor"`
	Source    string    `json:"source"`
	Success   bool      `json:"success"`
	Stage     string    `json:"stage,omitempty"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Details   string    `json:"details,omitempty"` // JSON
}

// Audit action constants
const (
	ActionUserCreate        = "user_create"
	ActionUserCreatePartial = "user_create_partial"
	ActionConfigDownload    = "config_download"
	ActionAuthFailed        = "auth_failed"
)

// Audit source constants
const (
	SourceTelegram = "telegram"
	SourceAPI      = "api"
	SourceCLI      = "cli"
)
