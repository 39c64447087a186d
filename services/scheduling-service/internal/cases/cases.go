// Package cases reads legal cases for matching and assignment.
package cases

import (
	"context"
	"fmt"
	"sync"

	"github.com/legalaid-connect/legalaid/libs/db"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type Repository interface {
	Case(ctx context.Context, id int64) (model.Case, error)
}

type Postgres struct {
	pool *db.Pool
}

func NewPostgres(pool *db.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (r *Postgres) Case(ctx context.Context, id int64) (model.Case, error) {
	var c model.Case
	err := r.pool.QueryRow(ctx, `
		SELECT id, citizen_id, case_title, case_number, specialization, ngo_type
		FROM cases
		WHERE id = $1
	`, id).Scan(&c.ID, &c.CitizenID, &c.Title, &c.Number, &c.Specialization, &c.NGOType)
	if db.IsNoRows(err) {
		return model.Case{}, model.NotFound("case")
	}
	if err != nil {
		return model.Case{}, fmt.Errorf("load case %d: %w", id, err)
	}
	return c, nil
}

// Static is an in-memory repository for tests and local tooling.
type Static struct {
	mu    sync.RWMutex
	cases map[int64]model.Case
}

func NewStatic(cs ...model.Case) *Static {
	s := &Static{cases: map[int64]model.Case{}}
	for _, c := range cs {
		s.cases[c.ID] = c
	}
	return s
}

func (s *Static) Put(c model.Case) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = c
}

func (s *Static) Case(_ context.Context, id int64) (model.Case, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cases[id]
	if !ok {
		return model.Case{}, model.NotFound("case")
	}
	return c, nil
}
