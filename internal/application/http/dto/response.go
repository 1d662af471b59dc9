package dto

import (
	"time"

	"github.com/allisson/admissions/internal/application/domain"
)

// ApplicationResponse represents an application in API responses.
type ApplicationResponse struct {
	ID            string    `json:"id"`
	ApplicantName string    `json:"applicantName"`
	Status        string    `json:"status"`
	Version       int64     `json:"version"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// MapApplicationToResponse converts a domain application to an API response.
func MapApplicationToResponse(app *domain.Application) ApplicationResponse {
	return ApplicationResponse{
		ID:            app.ID.String(),
		ApplicantName: app.ApplicantName,
		Status:        string(app.Status),
		Version:       app.Version,
		CreatedAt:     app.CreatedAt,
		UpdatedAt:     app.UpdatedAt,
	}
}

// TransitionLogResponse represents one audit record in API responses.
type TransitionLogResponse struct {
	ID             string         `json:"id"`
	ApplicationID  string         `json:"applicationId"`
	FromStatus     string         `json:"fromStatus"`
	ToStatus       string         `json:"toStatus"`
	ReasonCode     string         `json:"reasonCode"`
	ActorID        string         `json:"actorId"`
	ActorRole      string         `json:"actorRole"`
	Comment        string         `json:"comment,omitempty"`
	IdempotencyKey *string        `json:"idempotencyKey,omitempty"`
	Data           map[string]any `json:"data,omitempty"`
	IPAddress      string         `json:"ipAddress,omitempty"`
	UserAgent      string         `json:"userAgent,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ListTransitionsResponse represents a page of an application's audit history.
type ListTransitionsResponse struct {
	Data []TransitionLogResponse `json:"data"`
}

// MapTransitionLogsToListResponse converts audit records to a list response.
func MapTransitionLogsToListResponse(logs []*domain.TransitionLog) ListTransitionsResponse {
	data := make([]TransitionLogResponse, 0, len(logs))
	for _, log := range logs {
		item := TransitionLogResponse{
			ID:             log.ID.String(),
			ApplicationID:  log.ApplicationID.String(),
			FromStatus:     string(log.FromStatus),
			ToStatus:       string(log.ToStatus),
			ReasonCode:     string(log.ReasonCode),
			ActorID:        log.ActorID,
			ActorRole:      string(log.ActorRole),
			Comment:        log.Comment,
			IdempotencyKey: log.IdempotencyKey,
			Data:           log.Data,
			CreatedAt:      log.CreatedAt,
		}
		if log.Provenance != nil {
			item.IPAddress = log.Provenance.IPAddress
			item.UserAgent = log.Provenance.UserAgent
		}
		data = append(data, item)
	}
	return ListTransitionsResponse{Data: data}
}

// RuleResponse is one allowed transition edge.
type RuleResponse struct {
	From   string   `json:"from"`
	Reason string   `json:"reason"`
	Roles  []string `json:"roles"`
	To     []string `json:"to"`
}

// PolicyResponse lists the transition table.
type PolicyResponse struct {
	Data []RuleResponse `json:"data"`
}

// MapRulesToPolicyResponse converts policy rules to an API response.
func MapRulesToPolicyResponse(rules []domain.Rule) PolicyResponse {
	data := make([]RuleResponse, 0, len(rules))
	for _, rule := range rules {
		roles := make([]string, 0, len(rule.Roles))
		for _, role := range rule.Roles {
			roles = append(roles, string(role))
		}
		to := make([]string, 0, len(rule.To))
		for _, status := range rule.To {
			to = append(to, string(status))
		}
		data = append(data, RuleResponse{
			From:   string(rule.From),
			Reason: string(rule.Reason),
			Roles:  roles,
			To:     to,
		})
	}
	return PolicyResponse{Data: data}
}
