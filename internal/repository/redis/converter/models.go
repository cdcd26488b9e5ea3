package converter

import "time"

// DeadLetterRedisModel — запись dlq:entry:<id> в Redis.
type DeadLetterRedisModel struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	MessageID string    `json:"message_id"`
	Payload   string    `json:"payload"`
	Reason    string    `json:"reason"`
	Error     string    `json:"error,omitempty"`
	Terminal  bool      `json:"terminal"`
	Attempts  int       `json:"attempts"`
	FailedAt  time.Time `json:"failed_at"`
}
