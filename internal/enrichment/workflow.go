// Package enrichment runs discovery batches: search each pending keyword,
// extract a company profile from every result page, and store the accepted,
// scored companies.
//
// A batch is strictly sequential and paced. Per-item failures are recorded
// and never abort the batch; quota denials and provider credential problems
// do.
package enrichment

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	activitydomain "github.com/smallbiznis/prospector/internal/activitylog/domain"
	"github.com/smallbiznis/prospector/internal/clock"
	companydomain "github.com/smallbiznis/prospector/internal/company/domain"
	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/executor"
	"github.com/smallbiznis/prospector/internal/extraction"
	keyworddomain "github.com/smallbiznis/prospector/internal/keyword/domain"
	obsmetrics "github.com/smallbiznis/prospector/internal/observability/metrics"
	"github.com/smallbiznis/prospector/internal/providers/fetch"
	"github.com/smallbiznis/prospector/internal/providers/llm"
	"github.com/smallbiznis/prospector/internal/providers/notify"
	"github.com/smallbiznis/prospector/internal/providers/search"
	"github.com/smallbiznis/prospector/internal/quota"
	"github.com/smallbiznis/prospector/internal/ratelimit"
	"github.com/smallbiznis/prospector/internal/scoring"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	callSearch  = "search"
	callFetch   = "fetch"
	callExtract = "ai_extract"
)

type Params struct {
	fx.In

	Config    config.Config
	Log       *zap.Logger
	Clock     clock.Clock
	Keywords  keyworddomain.Service
	Companies companydomain.Service
	Activity  activitydomain.Service
	Gate      *quota.Gate
	Executor  *executor.Executor
	Searcher  search.Searcher
	Fetcher   fetch.Fetcher
	Completer llm.Completer
	Scorer    *scoring.Scorer
	Pacer     ratelimit.Pacer
	Notifier  notify.Notifier     `optional:"true"`
	Metrics   *obsmetrics.Metrics `optional:"true"`
}

type Workflow struct {
	cfg       config.WorkflowConfig
	log       *zap.Logger
	clock     clock.Clock
	keywords  keyworddomain.Service
	companies companydomain.Service
	activity  activitydomain.Service
	gate      *quota.Gate
	exec      *executor.Executor
	searcher  search.Searcher
	fetcher   fetch.Fetcher
	completer llm.Completer
	scorer    *scoring.Scorer
	pacer     ratelimit.Pacer
	notifier  notify.Notifier
	metrics   *obsmetrics.Metrics
	tracer    trace.Tracer
}

func NewWorkflow(p Params) *Workflow {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NoOp{}
	}
	cfg := p.Config.Workflow
	if cfg.MaxBatchTerms <= 0 {
		cfg.MaxBatchTerms = 10
	}
	if cfg.MaxAccepted <= 0 {
		cfg.MaxAccepted = 20
	}
	return &Workflow{
		cfg:       cfg,
		log:       p.Log.Named("enrichment.workflow"),
		clock:     p.Clock,
		keywords:  p.Keywords,
		companies: p.Companies,
		activity:  p.Activity,
		gate:      p.Gate,
		exec:      p.Executor,
		searcher:  p.Searcher,
		fetcher:   p.Fetcher,
		completer: p.Completer,
		scorer:    p.Scorer,
		pacer:     p.Pacer,
		notifier:  notifier,
		metrics:   p.Metrics,
		tracer:    otel.Tracer("prospector/enrichment"),
	}
}

// run carries the mutable state of one batch.
type run struct {
	id          string
	result      *BatchResult
	maxAccepted int
	seen        map[string]struct{}
}

func (r *run) full() bool { return r.result.AcceptedCount >= r.maxAccepted }

// stop reasons returned by the per-term and per-result steps.
var (
	errCancelled = errors.New("cancelled")
	errDenied    = errors.New("denied")
	errFull      = errors.New("accepted cap reached")
)

// RunBatch processes pending keywords until they run out or the accepted cap
// is reached. The returned error is non-nil only when the batch could not
// start or was aborted by ErrProviderConfig; quota denial and cancellation
// are reported in the result.
func (w *Workflow) RunBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	maxTerms := w.cfg.MaxBatchTerms
	if req.MaxTerms > 0 && req.MaxTerms < maxTerms {
		maxTerms = req.MaxTerms
	}
	maxAccepted := w.cfg.MaxAccepted
	if req.MaxAccepted > 0 {
		maxAccepted = req.MaxAccepted
	}

	r := &run{
		id: ulid.MustNew(ulid.Timestamp(w.clock.Now()), rand.Reader).String(),
		result: &BatchResult{
			StartedAt:     w.clock.Now().UTC(),
			Accepted:      []Accepted{},
			PerTermErrors: []TermError{},
		},
		maxAccepted: maxAccepted,
		seen:        make(map[string]struct{}),
	}
	r.result.RunID = r.id

	ctx, span := w.tracer.Start(ctx, "enrichment.RunBatch", trace.WithAttributes(
		attribute.String("run_id", r.id),
		attribute.Int("max_terms", maxTerms),
		attribute.Int("max_accepted", maxAccepted),
	))
	defer span.End()

	log := w.log.With(zap.String("run_id", r.id))

	keywords, err := w.keywords.ListPending(ctx, maxTerms)
	if err != nil {
		return *r.result, fmt.Errorf("list pending keywords: %w", err)
	}
	log.Info("batch started", zap.Int("terms", len(keywords)), zap.Int("max_accepted", maxAccepted))
	w.record(ctx, r, activitydomain.Entry{
		Stage:   "batch",
		Message: fmt.Sprintf("batch started with %d term(s)", len(keywords)),
	})

	var runErr error
	for _, kw := range keywords {
		if r.full() {
			break
		}
		if ctx.Err() != nil {
			r.result.Cancelled = true
			break
		}

		stop := w.processTerm(ctx, r, kw)
		r.result.TermsProcessed++
		if stop == nil {
			continue
		}
		if errors.Is(stop, errFull) {
			break
		}
		if errors.Is(stop, errCancelled) {
			r.result.Cancelled = true
			break
		}
		if errors.Is(stop, errDenied) {
			r.result.Aborted = "quota_denied"
			break
		}
		if errors.Is(stop, ErrProviderConfig) {
			r.result.Aborted = string(executor.KindAuthOrConfig)
			runErr = stop
			break
		}
	}

	r.result.FinishedAt = w.clock.Now().UTC()
	span.SetAttributes(
		attribute.Int("accepted", r.result.AcceptedCount),
		attribute.Int("errors", r.result.ErrorCount),
		attribute.Int("skipped", r.result.SkippedCount),
	)
	log.Info("batch finished",
		zap.Int("terms_processed", r.result.TermsProcessed),
		zap.Int("accepted", r.result.AcceptedCount),
		zap.Int("errors", r.result.ErrorCount),
		zap.Int("skipped", r.result.SkippedCount),
		zap.Bool("cancelled", r.result.Cancelled),
		zap.String("aborted", r.result.Aborted),
	)
	w.record(context.WithoutCancel(ctx), r, activitydomain.Entry{
		Stage:   "batch",
		Level:   summaryActivityLevel(r.result),
		Message: summaryLine(r.result),
	})
	w.notifySummary(context.WithoutCancel(ctx), r.result)
	return *r.result, runErr
}

// processTerm runs one keyword end to end. A nil return means continue with
// the next keyword.
func (w *Workflow) processTerm(ctx context.Context, r *run, kw keyworddomain.Keyword) error {
	results, denial, err := quota.Guard(ctx, w.gate, usagedomain.OperationSearch, 1, func(ctx context.Context) ([]search.Result, error) {
		if err := w.pacer.Wait(ctx); err != nil {
			return nil, err
		}
		out := executor.Execute(ctx, w.exec, callSearch, func(ctx context.Context) ([]search.Result, error) {
			return w.searcher.Search(ctx, kw.Term)
		})
		return out.Value, out.AsError(callSearch)
	})
	if denial != nil {
		w.deny(ctx, r, kw, StageSearch, *denial)
		return errDenied
	}
	if err != nil {
		if ctx.Err() != nil {
			return errCancelled
		}
		kind := kindOf(err)
		w.fail(ctx, r, kw, StageSearch, "", string(kind), err)
		if markErr := w.keywords.MarkFailed(ctx, kw.ID, fmt.Sprintf("%s: %s", kind, err)); markErr != nil {
			w.log.Warn("failed to mark keyword failed", zap.Int64("keyword_id", kw.ID), zap.Error(markErr))
		}
		if kind == executor.KindAuthOrConfig {
			return fmt.Errorf("%w: search: %v", ErrProviderConfig, err)
		}
		return nil
	}

	for _, res := range results {
		if r.full() {
			w.markDone(ctx, kw, len(results))
			return errFull
		}
		if ctx.Err() != nil {
			return errCancelled
		}
		if stop := w.processResult(ctx, r, kw, res); stop != nil {
			return stop
		}
	}
	w.markDone(ctx, kw, len(results))
	if r.full() {
		return errFull
	}
	return nil
}

func (w *Workflow) processResult(ctx context.Context, r *run, kw keyworddomain.Keyword, res search.Result) error {
	if err := w.pacer.Wait(ctx); err != nil {
		return errCancelled
	}
	fetched := executor.Execute(ctx, w.exec, callFetch, func(ctx context.Context) (fetch.Page, error) {
		return w.fetcher.Fetch(ctx, res.URL)
	})
	if !fetched.OK() {
		if ctx.Err() != nil {
			return errCancelled
		}
		w.fail(ctx, r, kw, StageFetch, res.URL, string(fetched.Kind), fetched.AsError(callFetch))
		return nil
	}

	content := fetched.Value.Text
	if strings.TrimSpace(content) == "" {
		content = strings.TrimSpace(res.Title + "\n" + res.Snippet)
	}
	prompt := llm.ExtractionPrompt(kw.Term, res.URL, content)

	text, denial, err := quota.Guard(ctx, w.gate, usagedomain.OperationAIExtract, 1, func(ctx context.Context) (string, error) {
		if err := w.pacer.Wait(ctx); err != nil {
			return "", err
		}
		out := executor.Execute(ctx, w.exec, callExtract, func(ctx context.Context) (string, error) {
			return w.completer.Complete(ctx, prompt)
		})
		return out.Value, out.AsError(callExtract)
	})
	if denial != nil {
		w.deny(ctx, r, kw, StageExtract, *denial)
		return errDenied
	}
	if err != nil {
		if ctx.Err() != nil {
			return errCancelled
		}
		kind := kindOf(err)
		w.fail(ctx, r, kw, StageExtract, res.URL, string(kind), err)
		if kind == executor.KindAuthOrConfig {
			return fmt.Errorf("%w: ai_extract: %v", ErrProviderConfig, err)
		}
		return nil
	}

	validated := extraction.ValidateCompany(text, extraction.Provenance{
		Term:      kw.Term,
		SourceURL: res.URL,
		At:        w.clock.Now().UTC(),
	})
	if !validated.OK {
		if validated.Kind.Category() == executor.KindValidationRejected {
			w.skip(ctx, r, kw, res.URL, validated.Error())
			return nil
		}
		w.fail(ctx, r, kw, StageExtract, res.URL, string(validated.Kind.Category()),
			errors.New(validated.Error()))
		return nil
	}
	rec := validated.Record

	key := companydomain.NameKey(rec.Name)
	if _, dup := r.seen[key]; dup {
		w.skip(ctx, r, kw, res.URL, fmt.Sprintf("duplicate company %q in this batch", rec.Name))
		return nil
	}
	exists, err := w.companies.ExistsByName(ctx, rec.Name)
	if err != nil {
		w.fail(ctx, r, kw, StageStore, res.URL, string(executor.KindCallFailed), err)
		return nil
	}
	if exists {
		r.seen[key] = struct{}{}
		w.skip(ctx, r, kw, res.URL, fmt.Sprintf("duplicate company %q", rec.Name))
		return nil
	}

	breakdown := w.scorer.Score(rec)
	company, err := w.companies.Create(ctx, companydomain.CreateRequest{
		Record:    rec,
		Breakdown: breakdown,
		RunID:     r.id,
	})
	if errors.Is(err, companydomain.ErrDuplicateName) {
		r.seen[key] = struct{}{}
		w.skip(ctx, r, kw, res.URL, fmt.Sprintf("duplicate company %q", rec.Name))
		return nil
	}
	if err != nil {
		w.fail(ctx, r, kw, StageStore, res.URL, string(executor.KindCallFailed), err)
		return nil
	}

	r.seen[key] = struct{}{}
	r.result.AcceptedCount++
	r.result.Accepted = append(r.result.Accepted, Accepted{
		CompanyID: company.ID,
		Name:      company.Name,
		Score:     company.Score,
		Term:      kw.Term,
	})
	w.metrics.RecordWorkflowItem(ctx, string(StageStore), "accepted")
	w.log.Info("company accepted",
		zap.String("run_id", r.id),
		zap.String("term", kw.Term),
		zap.String("name", company.Name),
		zap.Int("score", company.Score),
	)
	return nil
}

func (w *Workflow) fail(ctx context.Context, r *run, kw keyworddomain.Keyword, stage Stage, url, kind string, err error) {
	te := TermError{
		KeywordID: kw.ID,
		Term:      kw.Term,
		Stage:     stage,
		SourceURL: url,
		Kind:      kind,
		Message:   err.Error(),
	}
	r.result.ErrorCount++
	r.result.PerTermErrors = append(r.result.PerTermErrors, te)
	w.metrics.RecordWorkflowItem(ctx, string(stage), "error")
	w.log.Warn("item failed",
		zap.String("run_id", r.id),
		zap.String("term", kw.Term),
		zap.String("stage", string(stage)),
		zap.String("error_kind", kind),
		zap.Error(err),
	)
	meta := map[string]any{"keyword_id": kw.ID}
	if url != "" {
		meta["source_url"] = url
	}
	w.record(ctx, r, activitydomain.Entry{
		Level:     activitydomain.LevelError,
		Stage:     string(stage),
		Term:      kw.Term,
		Message:   err.Error(),
		ErrorKind: kind,
		Metadata:  meta,
	})
}

func (w *Workflow) skip(ctx context.Context, r *run, kw keyworddomain.Keyword, url, reason string) {
	r.result.SkippedCount++
	w.metrics.RecordWorkflowItem(ctx, string(StageExtract), "skipped")
	w.log.Debug("item skipped", zap.String("run_id", r.id), zap.String("term", kw.Term), zap.String("reason", reason))
	w.record(ctx, r, activitydomain.Entry{
		Level:     activitydomain.LevelInfo,
		Stage:     string(StageExtract),
		Term:      kw.Term,
		Message:   reason,
		ErrorKind: string(executor.KindValidationRejected),
		Metadata:  map[string]any{"source_url": url},
	})
}

func (w *Workflow) deny(ctx context.Context, r *run, kw keyworddomain.Keyword, stage Stage, d quota.Decision) {
	r.result.Denied = &d
	w.metrics.RecordWorkflowItem(ctx, string(stage), "denied")
	w.log.Warn("batch stopped by quota",
		zap.String("run_id", r.id),
		zap.String("operation", string(d.Operation)),
		zap.String("reason", string(d.Reason)),
		zap.Int64("usage", d.CurrentUsage),
		zap.Int64("limit", d.Limit),
	)
	w.record(ctx, r, activitydomain.Entry{
		Level:     activitydomain.LevelWarn,
		Stage:     string(stage),
		Term:      kw.Term,
		Message:   d.Error(),
		ErrorKind: string(executor.KindQuotaDenied),
		Metadata: map[string]any{
			"tier":   string(d.Tier),
			"reason": string(d.Reason),
			"usage":  d.CurrentUsage,
			"limit":  d.Limit,
		},
	})
}

func (w *Workflow) markDone(ctx context.Context, kw keyworddomain.Keyword, results int) {
	if err := w.keywords.MarkDone(ctx, kw.ID, results); err != nil {
		w.log.Warn("failed to mark keyword done", zap.Int64("keyword_id", kw.ID), zap.Error(err))
	}
}

// record writes an activity log row. Failures are logged, never propagated.
func (w *Workflow) record(ctx context.Context, r *run, e activitydomain.Entry) {
	e.RunID = r.id
	if err := w.activity.Append(ctx, e); err != nil {
		w.log.Warn("activity log append failed", zap.String("run_id", r.id), zap.Error(err))
	}
}

func (w *Workflow) notifySummary(ctx context.Context, res *BatchResult) {
	level := notify.LevelInfo
	switch {
	case res.Aborted != "":
		level = notify.LevelError
	case res.ErrorCount > 0 || res.Cancelled:
		level = notify.LevelWarning
	}
	fields := map[string]string{
		"run_id":   res.RunID,
		"terms":    fmt.Sprint(res.TermsProcessed),
		"accepted": fmt.Sprint(res.AcceptedCount),
		"errors":   fmt.Sprint(res.ErrorCount),
		"skipped":  fmt.Sprint(res.SkippedCount),
		"duration": res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String(),
	}
	if res.Denied != nil {
		fields["denied"] = fmt.Sprintf("%s %s", res.Denied.Operation, res.Denied.Reason)
	}
	_ = w.notifier.Notify(ctx, notify.Message{
		Title:  "Enrichment batch finished",
		Body:   summaryLine(res),
		Level:  level,
		Fields: fields,
	})
}

func summaryLine(res *BatchResult) string {
	line := fmt.Sprintf("%d accepted, %d error(s), %d skipped across %d term(s)",
		res.AcceptedCount, res.ErrorCount, res.SkippedCount, res.TermsProcessed)
	switch {
	case res.Denied != nil:
		line += "; stopped by quota (" + string(res.Denied.Reason) + ")"
	case res.Aborted != "":
		line += "; aborted (" + res.Aborted + ")"
	case res.Cancelled:
		line += "; cancelled"
	}
	return line
}

func summaryActivityLevel(res *BatchResult) activitydomain.Level {
	switch {
	case res.Aborted != "":
		return activitydomain.LevelError
	case res.ErrorCount > 0 || res.Cancelled:
		return activitydomain.LevelWarn
	}
	return activitydomain.LevelInfo
}

func kindOf(err error) executor.ErrorKind {
	var callErr *executor.CallError
	if errors.As(err, &callErr) {
		return callErr.Kind
	}
	return executor.Classify(err)
}
