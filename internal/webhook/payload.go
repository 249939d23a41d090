package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
)

// TimestampLayout matches ISO-8601 with millisecond precision in UTC.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Payload is the body delivered to business endpoints.
type Payload struct {
	SurveyID  string
	SubjectID string
	Score     int
	Comment   *string
	Timestamp time.Time
}

func PayloadFromDelivery(d *domain.WebhookDelivery) Payload {
	return Payload{
		SurveyID:  d.SurveyID,
		SubjectID: d.SubjectID,
		Score:     d.Score,
		Comment:   d.Comment,
		Timestamp: d.CreatedAt,
	}
}

// Canonical serializes the payload with sorted keys, no HTML escaping and no
// trailing newline, so receivers in any language can reproduce the signed bytes.
func (p Payload) Canonical() ([]byte, error) {
	var comment any
	if p.Comment != nil {
		comment = *p.Comment
	}

	// encoding/json sorts map keys.
	fields := map[string]any{
		"comment":    comment,
		"score":      p.Score,
		"subject_id": p.SubjectID,
		"survey_id":  p.SurveyID,
		"timestamp":  p.Timestamp.UTC().Format(TimestampLayout),
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(fields); err != nil {
		return nil, fmt.Errorf("failed to encode webhook payload: %w", err)
	}

	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
