package handler

import (
	"time"

	"instahelp/internal/captoken/models"
)

// TokenResponse is what the owner sees for their active token.
type TokenResponse struct {
	ID             string     `json:"id"`
	Token          string     `json:"token"`
	EmergencyURL   string     `json:"emergency_url"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

// HistoryEntry describes a past or current token without its secret.
type HistoryEntry struct {
	ID             string     `json:"id"`
	Version        int        `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	RevokedAt      *time.Time `json:"revoked_at,omitempty"`
	LastAccessedAt *time.Time `json:"last_accessed_at,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

type HistoryResponse struct {
	Tokens []HistoryEntry `json:"tokens"`
}

func toTokenResponse(t *models.Token, url string) *TokenResponse {
	return &TokenResponse{
		ID:             t.ID.String(),
		Token:          t.Token,
		EmergencyURL:   url,
		Version:        t.Version,
		CreatedAt:      t.CreatedAt,
		LastAccessedAt: t.LastAccessedAt,
		ExpiresAt:      t.ExpiresAt,
	}
}

func toHistory(tokens []*models.Token) *HistoryResponse {
	out := make([]HistoryEntry, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, HistoryEntry{
			ID:             t.ID.String(),
			Version:        t.Version,
			CreatedAt:      t.CreatedAt,
			RevokedAt:      t.RevokedAt,
			LastAccessedAt: t.LastAccessedAt,
			ExpiresAt:      t.ExpiresAt,
		})
	}
	return &HistoryResponse{Tokens: out}
}
