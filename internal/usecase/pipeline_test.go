package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"arxivalert/internal/config"
	"arxivalert/internal/domain"
	"arxivalert/internal/filter"
	"arxivalert/internal/ports"
	"arxivalert/internal/retry"
)

type stubSource struct {
	papers []domain.Paper
	err    error
}

func (s *stubSource) FetchDaily(context.Context, time.Time) ([]domain.Paper, error) {
	return s.papers, s.err
}

func TestPipelineFiltersBeforeDispatch(t *testing.T) {
	t.Parallel()

	source := &stubSource{papers: []domain.Paper{
		{ID: "p1", Title: "Diffusion models at scale"},
		{ID: "p2", Title: "Unrelated survey"},
	}}
	sender := &scriptedSender{id: "hook", batchSize: 1}
	pipeline := NewPipeline(PipelineDeps{
		Source: source,
		Filter: filter.New(config.FilterConfig{TitleKeywords: []string{"diffusion"}}),
		Dispatcher: NewDispatcher(DispatcherDeps{
			Ledger:  newMemLedger(),
			Senders: []ports.Sender{sender},
			Engine:  testEngine(),
			Policy:  retry.Policy{MaxAttempts: 2},
		}),
	})

	report, err := pipeline.ProcessDay(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("process day: %v", err)
	}
	if report.Candidates != 1 {
		t.Fatalf("filter should narrow candidates to 1, got %d", report.Candidates)
	}
	if sender.callCount() != 1 || sender.calls[0][0] != "p1" {
		t.Fatalf("unexpected deliveries: %v", sender.calls)
	}
}

func TestPipelineSourceErrorPropagates(t *testing.T) {
	t.Parallel()

	cause := errors.New("catalog down")
	pipeline := NewPipeline(PipelineDeps{
		Source: &stubSource{err: cause},
		Dispatcher: NewDispatcher(DispatcherDeps{
			Ledger: newMemLedger(),
			Engine: testEngine(),
		}),
	})

	_, err := pipeline.ProcessDay(context.Background(), time.Now())
	if !errors.Is(err, cause) {
		t.Fatalf("expected source error, got %v", err)
	}
}
