package domain

import (
	"github.com/allisson/admissions/internal/errors"
)

// Status is the lifecycle state of an application.
type Status string

const (
	StatusDraft              Status = "DRAFT"
	StatusPending            Status = "PENDING"
	StatusUnderReview        Status = "UNDER_REVIEW"
	StatusDocumentsRequested Status = "DOCUMENTS_REQUESTED"
	StatusInterviewScheduled Status = "INTERVIEW_SCHEDULED"
	StatusWaitlisted         Status = "WAITLISTED"
	StatusApproved           Status = "APPROVED"
	StatusRejected           Status = "REJECTED"
	StatusEnrolled           Status = "ENROLLED"
	StatusWithdrawn          Status = "WITHDRAWN"
	StatusArchived           Status = "ARCHIVED"
)

// AllStatuses lists every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusDraft,
		StatusPending,
		StatusUnderReview,
		StatusDocumentsRequested,
		StatusInterviewScheduled,
		StatusWaitlisted,
		StatusApproved,
		StatusRejected,
		StatusEnrolled,
		StatusWithdrawn,
		StatusArchived,
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	for _, known := range AllStatuses() {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStatus validates s as a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.Valid() {
		return "", errors.Wrapf(errors.ErrInvalidInput, "unknown status %q", s)
	}
	return status, nil
}

// Role is the capacity in which an actor requests a transition.
type Role string

const (
	// RoleApoderado is the guardian applying on behalf of a student.
	RoleApoderado   Role = "APODERADO"
	RoleCoordinator Role = "COORDINATOR"
	RoleAdmin       Role = "ADMIN"
	// RoleSystem is used by automated jobs such as deadline expiry.
	RoleSystem Role = "SYSTEM"
)

// AllRoles lists every role.
func AllRoles() []Role {
	return []Role{RoleApoderado, RoleCoordinator, RoleAdmin, RoleSystem}
}

func (r Role) Valid() bool {
	for _, known := range AllRoles() {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRole validates s as a Role.
func ParseRole(s string) (Role, error) {
	role := Role(s)
	if !role.Valid() {
		return "", errors.Wrapf(errors.ErrInvalidInput, "unknown role %q", s)
	}
	return role, nil
}

// ReasonCode is the business reason recorded with a transition.
type ReasonCode string

const (
	ReasonFormSubmitted       ReasonCode = "FORM_SUBMITTED"
	ReasonReviewStarted       ReasonCode = "REVIEW_STARTED"
	ReasonDocumentsMissing    ReasonCode = "DOCUMENTS_MISSING"
	ReasonDocumentsSubmitted  ReasonCode = "DOCUMENTS_SUBMITTED"
	ReasonDeadlineExpired     ReasonCode = "DEADLINE_EXPIRED"
	ReasonInterviewRequired   ReasonCode = "INTERVIEW_REQUIRED"
	ReasonInterviewCompleted  ReasonCode = "INTERVIEW_COMPLETED"
	ReasonEvaluationPassed    ReasonCode = "EVALUATION_PASSED"
	ReasonEvaluationFailed    ReasonCode = "EVALUATION_FAILED"
	ReasonSeatAvailable       ReasonCode = "SEAT_AVAILABLE"
	ReasonSeatsExhausted      ReasonCode = "SEATS_EXHAUSTED"
	ReasonEnrollmentConfirmed ReasonCode = "ENROLLMENT_CONFIRMED"
	ReasonApplicantWithdrew   ReasonCode = "APPLICANT_WITHDREW"
	ReasonAppealAccepted      ReasonCode = "APPEAL_ACCEPTED"
	ReasonRecordArchived      ReasonCode = "RECORD_ARCHIVED"
)

// AllReasonCodes lists every reason code.
func AllReasonCodes() []ReasonCode {
	return []ReasonCode{
		ReasonFormSubmitted,
		ReasonReviewStarted,
		ReasonDocumentsMissing,
		ReasonDocumentsSubmitted,
		ReasonDeadlineExpired,
		ReasonInterviewRequired,
		ReasonInterviewCompleted,
		ReasonEvaluationPassed,
		ReasonEvaluationFailed,
		ReasonSeatAvailable,
		ReasonSeatsExhausted,
		ReasonEnrollmentConfirmed,
		ReasonApplicantWithdrew,
		ReasonAppealAccepted,
		ReasonRecordArchived,
	}
}

func (r ReasonCode) Valid() bool {
	for _, known := range AllReasonCodes() {
		if r == known {
			return true
		}
	}
	return false
}

// ParseReasonCode validates s as a ReasonCode.
func ParseReasonCode(s string) (ReasonCode, error) {
	reason := ReasonCode(s)
	if !reason.Valid() {
		return "", errors.Wrapf(errors.ErrInvalidInput, "unknown reason code %q", s)
	}
	return reason, nil
}
