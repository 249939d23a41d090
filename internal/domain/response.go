package domain

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	MinScore = 0
	MaxScore = 10

	MaxCommentLength = 5000

	// Identifier limits match the column sizes of webhook_deliveries.
	MaxResponseIDLength = 64
	MaxBusinessIDLength = 64
	MaxSurveyIDLength   = 64
	MaxSubjectIDLength  = 255
)

// responseNamespace scopes derived response ids.
var responseNamespace = uuid.MustParse("6f1c2f0e-9b1d-4c39-8f57-3a1d2f6c9e41")

// SurveyResponse is the event emitted when a subject submits a score.
type SurveyResponse struct {
	ResponseID string
	BusinessID string
	SurveyID   string
	SubjectID  string
	Score      int
	Comment    *string
	CreatedAt  time.Time
}

func (r *SurveyResponse) Validate() error {
	if err := ValidateBusinessID(r.BusinessID); err != nil {
		return err
	}
	if err := validateIdentifier("survey_id", r.SurveyID, MaxSurveyIDLength); err != nil {
		return err
	}
	if err := validateIdentifier("subject_id", r.SubjectID, MaxSubjectIDLength); err != nil {
		return err
	}
	if charCount(r.ResponseID) > MaxResponseIDLength {
		return fmt.Errorf("%w: response_id exceeds %d characters", ErrValidation, MaxResponseIDLength)
	}
	if r.Score < MinScore || r.Score > MaxScore {
		return fmt.Errorf("%w: score must be between %d and %d (got %d)", ErrValidation, MinScore, MaxScore, r.Score)
	}
	if r.Comment != nil && charCount(*r.Comment) > MaxCommentLength {
		return fmt.Errorf("%w: comment exceeds %d characters", ErrValidation, MaxCommentLength)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("%w: created_at is required", ErrValidation)
	}
	return nil
}

// ValidateBusinessID checks that id is present and fits the business_id columns.
func ValidateBusinessID(id string) error {
	return validateIdentifier("business_id", id, MaxBusinessIDLength)
}

func validateIdentifier(field, value string, maxLength int) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("%w: %s is required", ErrValidation, field)
	}
	if charCount(trimmed) > maxLength {
		return fmt.Errorf("%w: %s exceeds %d characters", ErrValidation, field, maxLength)
	}
	return nil
}

func charCount(s string) int {
	return utf8.RuneCountInString(s)
}

// Normalize trims identifiers, drops blank comments and fills ResponseID.
func (r *SurveyResponse) Normalize() {
	r.BusinessID = strings.TrimSpace(r.BusinessID)
	r.SurveyID = strings.TrimSpace(r.SurveyID)
	r.SubjectID = strings.TrimSpace(r.SubjectID)
	r.ResponseID = strings.TrimSpace(r.ResponseID)

	if r.Comment != nil {
		trimmed := strings.TrimSpace(*r.Comment)
		if trimmed == "" {
			r.Comment = nil
		} else {
			r.Comment = &trimmed
		}
	}
	if !r.CreatedAt.IsZero() {
		r.CreatedAt = r.CreatedAt.UTC()
	}
	if r.ResponseID == "" {
		r.ResponseID = DeriveResponseID(r.BusinessID, r.SurveyID, r.SubjectID, r.CreatedAt)
	}
}

// DeriveResponseID returns a stable id for events that do not carry one, so a
// redelivered event maps onto the same delivery record.
func DeriveResponseID(businessID, surveyID, subjectID string, createdAt time.Time) string {
	key := strings.Join([]string{
		businessID,
		surveyID,
		subjectID,
		createdAt.UTC().Format(time.RFC3339Nano),
	}, "|")
	return uuid.NewSHA1(responseNamespace, []byte(key)).String()
}
