// Package repository holds the application persistence helpers shared by the dialect
// packages (postgresql, mysql, sqlite).
package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/allisson/admissions/internal/application/domain"
	apperrors "github.com/allisson/admissions/internal/errors"
)

// ApplicationColumns is the application select list shared by every dialect, in scan order.
const ApplicationColumns = `id, applicant_name, status, version, created_at, updated_at`

// TransitionLogColumns is the transition log select list shared by every dialect, in scan order.
const TransitionLogColumns = `id, application_id, from_status, to_status, reason_code, actor_id, actor_role,
	comment, idempotency_key, data, ip_address, user_agent, created_at`

// EncodeData serializes the free-form transition data. Nil data is stored as NULL.
func EncodeData(data map[string]any) (*string, error) {
	if data == nil {
		return nil, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to marshal transition data")
	}
	encoded := string(raw)
	return &encoded, nil
}

// DecodeData parses stored transition data. Empty input yields nil.
func DecodeData(raw []byte) (map[string]any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, apperrors.Wrap(err, "failed to unmarshal transition data")
	}
	return data, nil
}

// ProvenanceArgs splits provenance into nullable column values.
func ProvenanceArgs(p *domain.Provenance) (ipAddress, userAgent *string) {
	if p == nil {
		return nil, nil
	}
	return &p.IPAddress, &p.UserAgent
}

// ScanProvenance rebuilds provenance from its columns. Both NULL yields nil.
func ScanProvenance(ipAddress, userAgent sql.NullString) *domain.Provenance {
	if !ipAddress.Valid && !userAgent.Valid {
		return nil
	}
	return &domain.Provenance{IPAddress: ipAddress.String, UserAgent: userAgent.String}
}
