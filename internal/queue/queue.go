package queue

import (
	"context"
	"fmt"
	"strings"
)

// DefaultResponseQueue carries survey-response events from the survey app.
const DefaultResponseQueue = "survey.responses"

// MessageHandler handles a consumed survey-response event.
type MessageHandler func(ctx context.Context, msg SurveyResponseMessage) error

// Consumer consumes survey-response events from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

// DLQName returns the dead-letter queue name for a work queue, e.g. dlq.survey.responses.
func DLQName(queue string) string {
	return fmt.Sprintf("dlq.%s", normalizeQueueName(queue))
}

func normalizeQueueName(queue string) string {
	return strings.ToLower(strings.TrimSpace(queue))
}
