package models

import (
	"strings"

	dErrors "checkin/pkg/domain-errors"
)

// RecordCheckInRequest asks to mark a candidate present for one paper.
// RequestToken is optional; when set, retries carrying the same token are
// applied at most once.
type RecordCheckInRequest struct {
	Identifier   string
	PaperID      string
	Title        string
	RequestToken string
}

func (r *RecordCheckInRequest) Normalize() {
	r.Identifier = strings.TrimSpace(r.Identifier)
	r.PaperID = strings.TrimSpace(r.PaperID)
	r.Title = strings.TrimSpace(r.Title)
	r.RequestToken = strings.TrimSpace(r.RequestToken)
}

func (r *RecordCheckInRequest) Validate() error {
	return validateTarget(r.Identifier, r.PaperID)
}

// RemoveCheckInRequest retracts a candidate's check-in for one paper.
type RemoveCheckInRequest struct {
	Identifier string
	PaperID    string
}

func (r *RemoveCheckInRequest) Normalize() {
	r.Identifier = strings.TrimSpace(r.Identifier)
	r.PaperID = strings.TrimSpace(r.PaperID)
}

func (r *RemoveCheckInRequest) Validate() error {
	return validateTarget(r.Identifier, r.PaperID)
}

func validateTarget(identifier, paperID string) error {
	if identifier == "" {
		return dErrors.New(dErrors.CodeValidation, "barcode is required")
	}
	if paperID == "" {
		return dErrors.New(dErrors.CodeValidation, "paperId is required")
	}
	return nil
}
