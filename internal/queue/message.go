package queue

import (
	"time"

	"github.com/clicknps/webhook-engine/internal/domain"
)

// SurveyResponseMessage is the broker payload for a submitted survey response.
type SurveyResponseMessage struct {
	ResponseID string    `json:"response_id,omitempty"`
	BusinessID string    `json:"business_id"`
	SurveyID   string    `json:"survey_id"`
	SubjectID  string    `json:"subject_id"`
	Score      int       `json:"score"`
	Comment    *string   `json:"comment"`
	CreatedAt  time.Time `json:"created_at"`
}

// ToDomain returns the normalized response carried by the message.
func (m SurveyResponseMessage) ToDomain() domain.SurveyResponse {
	r := domain.SurveyResponse{
		ResponseID: m.ResponseID,
		BusinessID: m.BusinessID,
		SurveyID:   m.SurveyID,
		SubjectID:  m.SubjectID,
		Score:      m.Score,
		Comment:    m.Comment,
		CreatedAt:  m.CreatedAt,
	}
	r.Normalize()
	return r
}

func (m SurveyResponseMessage) Validate() error {
	r := m.ToDomain()
	return r.Validate()
}
