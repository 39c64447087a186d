// Package directory resolves citizens, lawyers and NGOs. The profile tables
// are owned elsewhere; everything here is read-only.
package directory

import (
	"context"
	"strings"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type Directory interface {
	Lookup(ctx context.Context, p model.Party) (model.Contact, error)
	// SearchLawyers returns approved lawyers whose specialization contains
	// the term, case-insensitively.
	SearchLawyers(ctx context.Context, specialization string) ([]model.Provider, error)
	// SearchNGOs returns approved NGOs whose type contains the term.
	SearchNGOs(ctx context.Context, ngoType string) ([]model.Provider, error)
}

// MatchScore rates how well a provider category fits a requested term:
// 1 for an exact case-insensitive match, 0.75 for a substring match, 0 otherwise.
func MatchScore(category, term string) float64 {
	c := strings.ToLower(strings.TrimSpace(category))
	t := strings.ToLower(strings.TrimSpace(term))
	switch {
	case t == "":
		return 0
	case c == t:
		return 1
	case strings.Contains(c, t):
		return 0.75
	}
	return 0
}
