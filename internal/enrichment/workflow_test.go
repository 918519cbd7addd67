package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	activitydomain "github.com/smallbiznis/prospector/internal/activitylog/domain"
	activityservice "github.com/smallbiznis/prospector/internal/activitylog/service"
	"github.com/smallbiznis/prospector/internal/clock"
	companydomain "github.com/smallbiznis/prospector/internal/company/domain"
	companyrepo "github.com/smallbiznis/prospector/internal/company/repository"
	companyservice "github.com/smallbiznis/prospector/internal/company/service"
	"github.com/smallbiznis/prospector/internal/config"
	"github.com/smallbiznis/prospector/internal/executor"
	"github.com/smallbiznis/prospector/internal/extraction"
	keyworddomain "github.com/smallbiznis/prospector/internal/keyword/domain"
	keywordservice "github.com/smallbiznis/prospector/internal/keyword/service"
	planservice "github.com/smallbiznis/prospector/internal/plan/service"
	"github.com/smallbiznis/prospector/internal/providers/fetch"
	"github.com/smallbiznis/prospector/internal/providers/llm"
	"github.com/smallbiznis/prospector/internal/providers/notify"
	"github.com/smallbiznis/prospector/internal/providers/search"
	"github.com/smallbiznis/prospector/internal/quota"
	"github.com/smallbiznis/prospector/internal/ratelimit"
	"github.com/smallbiznis/prospector/internal/scoring"
	"github.com/smallbiznis/prospector/internal/statestore"
	usagedomain "github.com/smallbiznis/prospector/internal/usage/domain"
	usageservice "github.com/smallbiznis/prospector/internal/usage/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string][]search.Result
	errs    map[string]error
	calls   []string
	after   func(term string)
}

func (f *fakeSearcher) Search(_ context.Context, term string) ([]search.Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, term)
	f.mu.Unlock()
	if f.after != nil {
		defer f.after(term)
	}
	if err := f.errs[term]; err != nil {
		return nil, err
	}
	return f.results[term], nil
}

type fakeFetcher struct {
	errs map[string]error
}

func (f *fakeFetcher) Fetch(_ context.Context, url string) (fetch.Page, error) {
	if err := f.errs[url]; err != nil {
		return fetch.Page{}, err
	}
	return fetch.Page{URL: url, Text: "content of " + url}, nil
}

type fakeCompleter struct {
	mu      sync.Mutex
	replies map[string]string
	err     error
	calls   int
}

func (f *fakeCompleter) Complete(_ context.Context, p llm.Prompt) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	for url, reply := range f.replies {
		if strings.Contains(p.User, "Page URL: "+url+"\n") {
			return reply, nil
		}
	}
	return "nothing useful", nil
}

type captureNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (c *captureNotifier) Notify(_ context.Context, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

type harness struct {
	wf        *Workflow
	keywords  keyworddomain.Service
	companies companydomain.Service
	activity  activitydomain.Service
	ledger    usagedomain.Ledger
	searcher  *fakeSearcher
	fetcher   *fakeFetcher
	completer *fakeCompleter
	notifier  *captureNotifier
}

func newHarness(t *testing.T, wcfg config.WorkflowConfig) *harness {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&keyworddomain.Keyword{}, &companydomain.Company{}, &activitydomain.ActivityLog{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fake := clock.NewFakeClock(time.Date(2026, 10, 19, 9, 0, 0, 0, time.UTC))
	cfg := config.Config{Plan: config.PlanConfig{TrialDays: 14}, Workflow: wcfg}
	log := zap.NewNop()
	store := statestore.NewMemory()

	ledger, err := usageservice.NewLedger(usageservice.LedgerParams{Store: store, Clock: fake, Config: cfg, Log: log})
	require.NoError(t, err)
	policy := planservice.NewPolicy(planservice.PolicyParams{Store: store, Clock: fake, Config: cfg, Log: log})

	h := &harness{
		keywords:  keywordservice.New(keywordservice.Params{DB: db, Log: log, GenID: node, Clock: fake}),
		companies: companyservice.New(companyservice.Params{DB: db, Log: log, GenID: node, Clock: fake, Repo: companyrepo.Provide()}),
		activity:  activityservice.NewService(activityservice.Params{DB: db, Log: log, GenID: node, Clock: fake}),
		ledger:    ledger,
		searcher:  &fakeSearcher{results: map[string][]search.Result{}, errs: map[string]error{}},
		fetcher:   &fakeFetcher{errs: map[string]error{}},
		completer: &fakeCompleter{replies: map[string]string{}},
		notifier:  &captureNotifier{},
	}
	h.wf = NewWorkflow(Params{
		Config:    cfg,
		Log:       log,
		Clock:     fake,
		Keywords:  h.keywords,
		Companies: h.companies,
		Activity:  h.activity,
		Gate:      quota.NewGate(quota.Params{Ledger: ledger, Policy: policy, Log: log}),
		Executor: executor.NewWithConfig(executor.Config{}, log,
			executor.WithSleep(func(context.Context, time.Duration) error { return nil })),
		Searcher:  h.searcher,
		Fetcher:   h.fetcher,
		Completer: h.completer,
		Scorer: scoring.NewScorer(config.NewStaticScoringConfigHolder(config.ScoringConfig{
			Target:         config.TargetConfig{SizeClass: "small", Industry: "software"},
			Affinity:       map[string]config.AffinityConfig{"software": {High: []string{"saas"}}},
			GrowthKeywords: []string{"hiring"},
		})),
		Pacer:    ratelimit.NewLocalPacer(0),
		Notifier: h.notifier,
	})
	return h
}

func company(name string) string {
	return extraction.CompanyJSON(extraction.CompanyRecord{Name: name, Category: "SaaS software", SizeClass: "small"})
}

func results(urls ...string) []search.Result {
	out := make([]search.Result, 0, len(urls))
	for _, u := range urls {
		out = append(out, search.Result{Title: u, URL: u})
	}
	return out
}

func (h *harness) statusOf(t *testing.T, term string) keyworddomain.Keyword {
	t.Helper()
	list, err := h.keywords.List(context.Background(), keyworddomain.ListRequest{})
	require.NoError(t, err)
	for _, k := range list.Keywords {
		if k.Term == term {
			return k
		}
	}
	t.Fatalf("keyword %q not found", term)
	return keyworddomain.Keyword{}
}

func TestRunBatchIsolatesFailures(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.WorkflowConfig{})
	_, err := h.keywords.Create(ctx, []string{"bakery", "cafe", "ramen"})
	require.NoError(t, err)

	h.searcher.results["bakery"] = results("https://a", "https://b", "https://c", "https://d", "https://f")
	h.searcher.errs["cafe"] = &executor.StatusError{StatusCode: http.StatusServiceUnavailable}
	h.searcher.results["ramen"] = results("https://e")
	h.fetcher.errs["https://f"] = &executor.StatusError{StatusCode: http.StatusNotFound}
	h.completer.replies["https://a"] = "sure: " + company("Acme Foods") + " done"
	h.completer.replies["https://b"] = "I could not find a company on this page."
	h.completer.replies["https://c"] = `{"companyName":"404 Not Found","isValidCompany":true}`
	h.completer.replies["https://d"] = `{"companyName":"ACME   foods"}`
	h.completer.replies["https://e"] = company("Ramen House")

	res, err := h.wf.RunBatch(ctx, BatchRequest{})
	require.NoError(t, err)

	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 3, res.TermsProcessed)
	assert.Equal(t, 2, res.AcceptedCount)
	assert.Equal(t, 3, res.ErrorCount)
	assert.Equal(t, 2, res.SkippedCount)
	assert.Nil(t, res.Denied)
	assert.False(t, res.Cancelled)
	require.Len(t, res.PerTermErrors, 3)

	stages := map[Stage]TermError{}
	for _, te := range res.PerTermErrors {
		stages[te.Stage] = te
	}
	assert.Equal(t, string(executor.KindMalformedResponse), stages[StageExtract].Kind)
	assert.Equal(t, "https://b", stages[StageExtract].SourceURL)
	assert.Equal(t, string(executor.KindCallFailed), stages[StageFetch].Kind)
	assert.Equal(t, "cafe", stages[StageSearch].Term)
	assert.Equal(t, string(executor.KindCallFailed), stages[StageSearch].Kind)

	require.Len(t, res.Accepted, 2)
	assert.Equal(t, "Acme Foods", res.Accepted[0].Name)
	assert.Equal(t, "Ramen House", res.Accepted[1].Name)
	assert.Equal(t, 50+20+15+2+0+1, res.Accepted[0].Score)

	stored, err := h.companies.FindByID(ctx, res.Accepted[0].CompanyID)
	require.NoError(t, err)
	assert.Equal(t, "bakery", stored.DiscoveryTerm)
	assert.Equal(t, "https://a", stored.SourceURL)
	assert.Equal(t, res.RunID, stored.RunID)
	assert.NotEmpty(t, stored.Explanation)

	assert.Equal(t, keyworddomain.StatusDone, h.statusOf(t, "bakery").Status)
	assert.Equal(t, 5, h.statusOf(t, "bakery").ResultCount)
	assert.Equal(t, keyworddomain.StatusFailed, h.statusOf(t, "cafe").Status)
	assert.Equal(t, keyworddomain.StatusDone, h.statusOf(t, "ramen").Status)

	assert.Equal(t, int64(3), h.ledger.Get(ctx, usagedomain.OperationSearch, time.Time{}))
	assert.Equal(t, int64(5), h.ledger.Get(ctx, usagedomain.OperationAIExtract, time.Time{}))

	logs, err := h.activity.ListByRun(ctx, res.RunID)
	require.NoError(t, err)
	assert.Len(t, logs, 7)

	require.Len(t, h.notifier.msgs, 1)
	assert.Equal(t, notify.LevelWarning, h.notifier.msgs[0].Level)
	assert.Equal(t, "2", h.notifier.msgs[0].Fields["accepted"])
}

func TestRunBatchSkipsStoredDuplicates(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.WorkflowConfig{})
	_, err := h.companies.Create(ctx, companydomain.CreateRequest{Record: extraction.CompanyRecord{Name: "Acme Foods"}})
	require.NoError(t, err)
	_, err = h.keywords.Create(ctx, []string{"bakery"})
	require.NoError(t, err)
	h.searcher.results["bakery"] = results("https://a")
	h.completer.replies["https://a"] = company("acme FOODS")

	res, err := h.wf.RunBatch(ctx, BatchRequest{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.AcceptedCount)
	assert.Equal(t, 1, res.SkippedCount)
	assert.Equal(t, 0, res.ErrorCount)
}

func TestRunBatchAbortsOnSearchDenial(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.WorkflowConfig{})
	_, err := h.keywords.Create(ctx, []string{"bakery", "cafe"})
	require.NoError(t, err)
	h.ledger.Increment(ctx, usagedomain.OperationSearch, 5)

	res, err := h.wf.RunBatch(ctx, BatchRequest{})
	require.NoError(t, err)
	require.NotNil(t, res.Denied)
	assert.Equal(t, quota.ReasonDailyLimitExceeded, res.Denied.Reason)
	assert.Equal(t, usagedomain.OperationSearch, res.Denied.Operation)
	assert.Equal(t, "quota_denied", res.Aborted)
	assert.Empty(t, h.searcher.calls)
	assert.Equal(t, keyworddomain.StatusPending, h.statusOf(t, "bakery").Status)
	assert.Equal(t, keyworddomain.StatusPending, h.statusOf(t, "cafe").Status)

	require.Len(t, h.notifier.msgs, 1)
	assert.Equal(t, notify.LevelError, h.notifier.msgs[0].Level)
}

func TestRunBatchAbortsOnExtractDenial(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.WorkflowConfig{})
	_, err := h.keywords.Create(ctx, []string{"bakery"})
	require.NoError(t, err)
	h.ledger.Increment(ctx, usagedomain.OperationAIExtract, 15)
	h.searcher.results["bakery"] = results("https://a", "https://b")

	res, err := h.wf.RunBatch(ctx, BatchRequest{})
	require.NoError(t, err)
	require.NotNil(t, res.Denied)
	assert.Equal(t, usagedomain.OperationAIExtract, res.Denied.Operation)
	assert.Zero(t, h.completer.calls)
	assert.Equal(t, keyworddomain.StatusPending, h.statusOf(t, "bakery").Status)
}

func TestRunBatchAbortsOnProviderConfig(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.WorkflowConfig{})
	_, err := h.keywords.Create(ctx, []string{"bakery", "cafe"})
	require.NoError(t, err)
	h.searcher.results["bakery"] = results("https://a", "https://b")
	h.completer.err = fmt.Errorf("llm: %w", executor.ErrMissingCredential)

	res, err := h.wf.RunBatch(ctx, BatchRequest{})
	require.ErrorIs(t, err, ErrProviderConfig)
	assert.Equal(t, string(executor.KindAuthOrConfig), res.Aborted)
	assert.Equal(t, 1, h.completer.calls)
	require.Len(t, res.PerTermErrors, 1)
	assert.Equal(t, string(executor.KindAuthOrConfig), res.PerTermErrors[0].Kind)
	assert.Equal(t, []string{"bakery"}, h.searcher.calls)
}

func TestRunBatchStopsAtAcceptedCap(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.WorkflowConfig{MaxAccepted: 1})
	_, err := h.keywords.Create(ctx, []string{"bakery", "cafe"})
	require.NoError(t, err)
	h.searcher.results["bakery"] = results("https://a", "https://b")
	h.completer.replies["https://a"] = company("Acme Foods")
	h.completer.replies["https://b"] = company("Beta Foods")

	res, err := h.wf.RunBatch(ctx, BatchRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.AcceptedCount)
	assert.Equal(t, 1, h.completer.calls)
	assert.Equal(t, []string{"bakery"}, h.searcher.calls)
	assert.Equal(t, keyworddomain.StatusPending, h.statusOf(t, "cafe").Status)
}

func TestRunBatchHonoursMaxTerms(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, config.WorkflowConfig{MaxBatchTerms: 5})
	_, err := h.keywords.Create(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)

	res, err := h.wf.RunBatch(ctx, BatchRequest{MaxTerms: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TermsProcessed)
	assert.Equal(t, []string{"a", "b"}, h.searcher.calls)
}

func TestRunBatchCancelsBetweenItems(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := newHarness(t, config.WorkflowConfig{})
	_, err := h.keywords.Create(ctx, []string{"bakery", "cafe"})
	require.NoError(t, err)
	h.searcher.results["bakery"] = results("https://a")
	h.searcher.after = func(string) { cancel() }

	res, err := h.wf.RunBatch(ctx, BatchRequest{})
	require.NoError(t, err)
	assert.True(t, res.Cancelled)
	assert.Zero(t, res.AcceptedCount)
	assert.Zero(t, h.completer.calls)
	assert.Equal(t, keyworddomain.StatusPending, h.statusOf(t, "bakery").Status)

	logs, err := h.activity.ListByRun(context.Background(), res.RunID)
	require.NoError(t, err)
	require.NotEmpty(t, logs)
	assert.Contains(t, logs[len(logs)-1].Message, "cancelled")
}
