package reputation

const (
	TaskCheckBadges = "reputation:check_badges"
)

type CheckBadgesPayload struct {
	UserID  string `json:"user_id"`
	TraceID string `json:"trace_id,omitempty"`
}
