package guardian

import "time"

// Event types published on the eventbus.
const (
	EventPrefix             = "guardian."
	EventStarted            = "guardian.started"
	EventCommand            = "guardian.command"
	EventWarning            = "guardian.warning"
	EventDelayed            = "guardian.delayed"
	EventEmergencyArmed     = "guardian.emergency.armed"
	EventEmergencyCancelled = "guardian.emergency.cancelled"
	EventShutdownBegin      = "guardian.shutdown.begin"
	EventShutdownDone       = "guardian.shutdown.done"
	EventNoticeFailed       = "guardian.notice.failed"
)

// EventData is the payload of every guardian.* event.
type EventData struct {
	SessionID      string     `json:"session_id,omitempty"`
	Phase          string     `json:"phase"`
	Speaker        string     `json:"speaker,omitempty"`
	Source         string     `json:"source,omitempty"`
	Command        string     `json:"command,omitempty"`
	Reason         string     `json:"reason,omitempty"`
	Text           string     `json:"text,omitempty"`
	Error          string     `json:"error,omitempty"`
	NextShutdownAt time.Time  `json:"next_shutdown_at"`
	EmergencyAt    *time.Time `json:"emergency_at,omitempty"`
}
