package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"arxivalert/internal/domain"
	"arxivalert/internal/filter"
	"arxivalert/internal/ports"
)

// PipelineDeps wires the driven adapters into one cycle workflow.
type PipelineDeps struct {
	Source     ports.PaperSource
	Filter     filter.Keyword
	Dispatcher *Dispatcher
	Logger     *slog.Logger
}

// Pipeline implements one poll-filter-dispatch cycle.
type Pipeline struct {
	source     ports.PaperSource
	filter     filter.Keyword
	dispatcher *Dispatcher
	logger     *slog.Logger
}

// NewPipeline constructs the cycle workflow.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:     deps.Source,
		filter:     deps.Filter,
		dispatcher: deps.Dispatcher,
		logger:     deps.Logger,
	}
}

// ProcessDay fetches the day's papers, applies the keyword predicate, and
// hands the candidates to the dispatcher. The returned report covers the
// whole cycle; dedup never happens here, only in the dispatcher's ledger.
func (p *Pipeline) ProcessDay(ctx context.Context, day time.Time) (domain.CycleReport, error) {
	if p.source == nil || p.dispatcher == nil {
		return domain.CycleReport{}, fmt.Errorf("pipeline: source and dispatcher are required")
	}

	papers, err := p.source.FetchDaily(ctx, day)
	if err != nil {
		return domain.CycleReport{}, fmt.Errorf("fetch daily: %w", err)
	}

	candidates := p.filter.Apply(papers)
	p.debug("candidates filtered", "fetched", len(papers), "kept", len(candidates))

	return p.dispatcher.Dispatch(ctx, candidates)
}

func (p *Pipeline) debug(msg string, args ...any) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
