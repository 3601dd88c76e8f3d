package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypePurgeTokens clears expired reset and verification tokens.
	TaskTypePurgeTokens = "auth:purge_tokens"
)

// Per-attempt deadlines. SMTP relays can stall for a long time.
const (
	sendEmailTimeout   = 45 * time.Second
	purgeTokensTimeout = 5 * time.Minute
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	Body     string `json:"body"`
	Template string `json:"template,omitempty"`
}

// NewSendEmailTask wraps a rendered email. Failed deliveries are retried five
// times before the task is archived.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data,
		asynq.Queue(QueueDefault), asynq.MaxRetry(5), asynq.Timeout(sendEmailTimeout)), nil
}

// NewPurgeTokensTask builds the expired token purge task.
func NewPurgeTokensTask() *asynq.Task {
	return asynq.NewTask(TaskTypePurgeTokens, nil,
		asynq.Queue(QueueDefault), asynq.MaxRetry(3), asynq.Timeout(purgeTokensTimeout))
}
