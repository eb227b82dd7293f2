package engine

import "context"

// Channels passed to Admit.
const (
	ChannelWeb   = "web"
	ChannelSMS   = "sms"
	ChannelSlack = "slack"
)

// ReasonLimitExceeded is the denial reason for a message over the length ceiling.
const ReasonLimitExceeded = "LIMIT_EXCEEDED"

// Admission is the result of an admission check.
type Admission struct {
	Allowed bool
	// Reason is set when Allowed is false.
	Reason string
	// Limit is the configured length ceiling; 0 means none.
	Limit int
}

// Evaluator decides whether a message may enter the relay path.
type Evaluator interface {
	// Admit evaluates the admission policy for message arriving on channel.
	Admit(ctx context.Context, channel, message string) (Admission, error)
}
