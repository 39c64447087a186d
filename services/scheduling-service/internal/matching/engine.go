// Package matching suggests lawyers and NGOs for a legal case.
package matching

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/legalaid-connect/legalaid/libs/otel"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/cases"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/directory"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/notify"
	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/store"
)

type Searcher interface {
	SearchLawyers(ctx context.Context, specialization string) ([]model.Provider, error)
	SearchNGOs(ctx context.Context, ngoType string) ([]model.Provider, error)
}

// Result lists the providers that matched on this run, in search order.
type Result struct {
	Lawyers []model.Provider
	NGOs    []model.Provider
}

func (r Result) Total() int { return len(r.Lawyers) + len(r.NGOs) }

type Engine struct {
	store  store.Store
	cases  cases.Repository
	search Searcher
	notify notify.Emitter
	logger *slog.Logger
	tracer trace.Tracer
}

func NewEngine(st store.Store, cs cases.Repository, search Searcher, emitter notify.Emitter, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  st,
		cases:  cs,
		search: search,
		notify: emitter,
		logger: logger,
		tracer: otelx.Tracer("scheduling-service/matching"),
	}
}

// MatchCase searches providers for the case and records every hit as a
// SUGGESTED match. Existing matches are left untouched, so repeated runs
// never duplicate rows or demote accepted matches. The citizen is notified
// once per run when anything matched.
func (e *Engine) MatchCase(ctx context.Context, caseID int64) (res Result, err error) {
	ctx, span := e.tracer.Start(ctx, "matching.MatchCase", trace.WithAttributes(attribute.Int64("legalaid.case_id", caseID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	c, err := e.cases.Case(ctx, caseID)
	if err != nil {
		return Result{}, err
	}

	if term := strings.TrimSpace(c.Specialization); term != "" {
		if res.Lawyers, err = e.search.SearchLawyers(ctx, term); err != nil {
			return Result{}, fmt.Errorf("search lawyers: %w", err)
		}
	}
	if term := strings.TrimSpace(c.NGOType); term != "" {
		if res.NGOs, err = e.search.SearchNGOs(ctx, term); err != nil {
			return Result{}, fmt.Errorf("search ngos: %w", err)
		}
	}
	span.SetAttributes(attribute.Int("legalaid.match_count", res.Total()))
	if res.Total() == 0 {
		return res, nil
	}

	created := 0
	err = e.store.Atomic(ctx, func(q store.Querier) error {
		for _, p := range res.Lawyers {
			ok, err := suggest(ctx, q, caseID, p, c.Specialization)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		for _, p := range res.NGOs {
			ok, err := suggest(ctx, q, caseID, p, c.NGOType)
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}
		return nil
	}, store.CaseLock(caseID))
	if err != nil {
		return Result{}, err
	}

	e.logger.InfoContext(ctx, "case matched", "case_id", caseID, "lawyers", len(res.Lawyers), "ngos", len(res.NGOs), "new", created)

	e.notify.Notify(ctx, notify.Notification{
		Recipient:   c.Citizen(),
		Type:        notify.TypeMatchFound,
		ReferenceID: fmt.Sprint(caseID),
		Message:     fmt.Sprintf("We found %d potential match(es) for your case %q.", res.Total(), c.Title),
	})
	return res, nil
}

func suggest(ctx context.Context, q store.Querier, caseID int64, p model.Provider, term string) (bool, error) {
	score := directory.MatchScore(p.Category, term)
	if score == 0 {
		// The directory matched on its own terms; keep the hit.
		score = 0.75
	}
	m := model.CaseMatch{
		CaseID:   caseID,
		Provider: p.Party,
		Score:    score,
		Status:   model.MatchSuggested,
	}
	return q.InsertCaseMatchIfAbsent(ctx, &m)
}

// ListMatches returns every match recorded for the case, best score first.
func (e *Engine) ListMatches(ctx context.Context, caseID int64) ([]model.CaseMatch, error) {
	if _, err := e.cases.Case(ctx, caseID); err != nil {
		return nil, err
	}
	return e.store.ListCaseMatches(ctx, caseID)
}
