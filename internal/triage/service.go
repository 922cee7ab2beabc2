package triage

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"triage-agent/internal/platform/metrics"
)

var (
	ErrEmptyMessage = errors.New("message must not be empty")
	// ErrPersistence means the turn ran but its result was not durably stored.
	ErrPersistence = errors.New("case could not be persisted")
	// ErrCaseBusy means the per-case lock could not be acquired in time.
	ErrCaseBusy = errors.New("case is busy")
	// ErrTurnAborted means the turn hit an unexpected internal failure. It is
	// returned together with a conservative fallback result.
	ErrTurnAborted = errors.New("turn aborted")
)

type SymptomExtractor interface {
	Extract(ctx context.Context, message string, recent []Turn, prior SymptomFrame) ExtractionResult
}

type Classifier interface {
	Classify(frame SymptomFrame, message string) TriageResult
}

type Planner interface {
	Plan(t TriageResult, frame SymptomFrame) (ActionPlan, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, message string, frame SymptomFrame, t TriageResult, a ActionPlan) SummaryOutcome
}

// Locker grants exclusive access to a case id. The returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Service is what the HTTP layer needs from the orchestrator.
type Service interface {
	ProcessTurn(ctx context.Context, in TurnInput) (*TurnResult, error)
	GetCase(ctx context.Context, id string) (*Case, error)
}

type Dependencies struct {
	Repo       Repository
	Locker     Locker
	Extractor  SymptomExtractor
	Classifier Classifier
	Planner    Planner
	Summarizer Summarizer
}

type Options struct {
	// HistoryWindow is how many recent turns the extractor sees.
	HistoryWindow int
	// LockWait bounds how long a turn waits for the case lock.
	LockWait time.Duration
}

// Orchestrator runs the per-turn state machine and is the only writer of
// case state.
type Orchestrator struct {
	deps     Dependencies
	opts     Options
	fallback fallbackPolicy
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrchestrator(deps Dependencies, opts Options, logger *zap.Logger) *Orchestrator {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 5
	}
	if opts.LockWait <= 0 {
		opts.LockWait = 15 * time.Second
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

type turnOutcome struct {
	result *TurnResult
	err    error
}

// ProcessTurn runs one turn. The work is detached from ctx: if the caller
// gives up, the turn still finishes and persists exactly once.
func (o *Orchestrator) ProcessTurn(ctx context.Context, in TurnInput) (*TurnResult, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, ErrEmptyMessage
	}
	caseID := strings.TrimSpace(in.CaseID)
	if caseID == "" {
		caseID = uuid.NewString()
	}

	logger := o.logger.With(zap.String("case_id", caseID))
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		logger = logger.With(zap.String("request_id", reqID))
	}

	done := make(chan turnOutcome, 1)
	work := context.WithoutCancel(ctx)
	go func() {
		res, err := o.runTurn(work, logger, caseID, strings.TrimSpace(in.UserID), msg)
		done <- turnOutcome{result: res, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-ctx.Done():
		logger.Warn("caller stopped waiting, turn continues in background", zap.Error(ctx.Err()))
		return nil, ctx.Err()
	}
}

func (o *Orchestrator) GetCase(ctx context.Context, id string) (*Case, error) {
	return o.deps.Repo.Get(ctx, id)
}

func (o *Orchestrator) runTurn(ctx context.Context, logger *zap.Logger, caseID, userID, msg string) (res *TurnResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("turn panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			metrics.RecordTurn("failed", "")
			f := &StageFailure{Stage: StageStart, Reason: ReasonInternal, Err: fmt.Errorf("panic: %v", r)}
			res, err = o.fallback.result(caseID, f), fmt.Errorf("%w: %v", ErrTurnAborted, r)
		}
	}()

	waitStart := time.Now()
	lockCtx, cancel := context.WithTimeout(ctx, o.opts.LockWait)
	unlock, err := o.deps.Locker.Lock(lockCtx, caseID)
	cancel()
	metrics.ObserveLockWait(time.Since(waitStart))
	if err != nil {
		metrics.RecordTurn("failed", "")
		return nil, fmt.Errorf("%w: %v", ErrCaseBusy, err)
	}
	defer unlock()

	c, err := o.deps.Repo.Get(ctx, caseID)
	switch {
	case errors.Is(err, ErrCaseNotFound):
		c = NewCase(caseID, userID, o.now())
		logger.Info("case created")
	case err != nil:
		metrics.RecordTurn("failed", "")
		return nil, fmt.Errorf("%w: load: %v", ErrPersistence, err)
	}
	if c.UserID == "" {
		c.UserID = userID
	}

	t := &turn{o: o, logger: logger, stage: StageStart}
	result := t.run(ctx, c, msg)

	if err := o.deps.Repo.Save(ctx, c); err != nil {
		logger.Error("failed to persist case", zap.Error(err))
		metrics.RecordTurn("failed", "")
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	outcome := "complete"
	severity := ""
	if result.Triage != nil {
		severity = string(result.Triage.SeverityLevel)
	} else {
		outcome = "needs_more_info"
	}
	metrics.RecordTurn(outcome, severity)
	logger.Info("turn processed",
		zap.String("stage", string(result.Stage)),
		zap.String("severity", severity),
		zap.Int("turns", len(c.Turns)),
		zap.Int("degraded", len(result.Degraded)),
	)
	return result, nil
}

// turn carries the state of a single pass through the state machine.
type turn struct {
	o        *Orchestrator
	logger   *zap.Logger
	stage    Stage
	degraded []StageFailure
}

func (t *turn) transition(to Stage) {
	t.logger.Debug("stage transition", zap.String("from", string(t.stage)), zap.String("to", string(to)))
	t.stage = to
}

func (t *turn) degrade(f *StageFailure) {
	if f == nil {
		return
	}
	t.degraded = append(t.degraded, *f)
	metrics.RecordStageFailure(string(f.Stage), string(f.Reason))
	t.logger.Warn("stage degraded to fallback",
		zap.String("stage", string(f.Stage)),
		zap.String("reason", string(f.Reason)),
		zap.Error(f.Err),
	)
}

// timed runs fn and records its duration under the current stage.
func (t *turn) timed(fn func()) {
	start := time.Now()
	fn()
	metrics.ObserveStage(string(t.stage), time.Since(start))
}

// run mutates c in place with the outcome of the turn.
func (t *turn) run(ctx context.Context, c *Case, msg string) *TurnResult {
	firstTurn := len(c.Turns) == 0
	history := transcript(c, msg)

	t.transition(StageExtracting)
	var ext ExtractionResult
	t.timed(func() { ext = t.extract(ctx, c, msg) })
	t.degrade(ext.Failure)
	frame := c.SymptomFrame.Merge(ext.Frame)
	c.SymptomFrame = frame

	t.transition(StageTriaging)
	var tr TriageResult
	t.timed(func() { tr = t.classify(frame, history) })
	if ext.Failure != nil {
		tr = t.o.fallback.floor(tr, ext.Failure)
	}

	// nothing recognised and no rule fired: ask before triaging
	if firstTurn && ext.Failure == nil && frame.Empty() && tr.SeverityLevel == SeverityGreen {
		t.transition(StageNeedsMoreInfo)
		reply := ClarifyingPrompt()
		c.Status = StatusAwaitingInput
		c.Turns = append(c.Turns, Turn{UserMessage: msg, SystemResponse: reply, Stage: StageNeedsMoreInfo, CreatedAt: t.o.now()})
		result := &TurnResult{
			CaseID:     c.ID,
			Status:     c.Status,
			Stage:      StageNeedsMoreInfo,
			Symptoms:   frame,
			Message:    reply,
			Disclaimer: Disclaimer,
			Degraded:   t.degraded,
		}
		// back to START awaiting the next user turn
		t.transition(StageStart)
		return result
	}

	t.transition(StagePlanning)
	var plan ActionPlan
	t.timed(func() { plan = t.plan(tr, frame) })

	t.transition(StageSummarizing)
	var summary SummaryResult
	t.timed(func() { summary = t.summarize(ctx, msg, frame, tr, plan) })

	t.transition(StageDone)
	reply := ReplyFor(tr.SeverityLevel)
	c.Triage = &tr
	c.Action = &plan
	c.Summary = &summary
	c.Status = StatusComplete
	c.Turns = append(c.Turns, Turn{UserMessage: msg, SystemResponse: reply, Stage: StageDone, CreatedAt: t.o.now()})

	return &TurnResult{
		CaseID:     c.ID,
		Status:     c.Status,
		Stage:      StageDone,
		Symptoms:   frame,
		Triage:     &tr,
		Action:     &plan,
		Summary:    &summary,
		Message:    reply,
		Disclaimer: Disclaimer,
		Degraded:   t.degraded,
	}
}

// transcript is every user message of the case, oldest first, ending with
// msg. Red-flag wording from an earlier turn keeps counting this way.
func transcript(c *Case, msg string) string {
	parts := make([]string, 0, len(c.Turns)+1)
	for _, prev := range c.Turns {
		parts = append(parts, prev.UserMessage)
	}
	return strings.Join(append(parts, msg), "\n")
}

func (t *turn) extract(ctx context.Context, c *Case, msg string) (res ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			res = ExtractionResult{Frame: SymptomFrame{AssociatedSymptoms: []string{}}, Failure: t.panicked(StageExtracting, r)}
		}
	}()
	return t.o.deps.Extractor.Extract(ctx, msg, c.RecentTurns(t.o.opts.HistoryWindow), c.SymptomFrame)
}

func (t *turn) classify(frame SymptomFrame, msg string) (res TriageResult) {
	defer func() {
		if r := recover(); r != nil {
			f := t.panicked(StageTriaging, r)
			t.degrade(f)
			res = t.o.fallback.triage(f)
		}
	}()
	res = t.o.deps.Classifier.Classify(frame, msg)
	if !res.SeverityLevel.Valid() {
		f := &StageFailure{Stage: StageTriaging, Reason: ReasonInternal, Err: fmt.Errorf("classifier returned severity %q", res.SeverityLevel)}
		t.degrade(f)
		return t.o.fallback.triage(f)
	}
	if res.RedFlagsTriggered == nil {
		res.RedFlagsTriggered = []string{}
	}
	return res
}

func (t *turn) plan(tr TriageResult, frame SymptomFrame) (res ActionPlan) {
	defer func() {
		if r := recover(); r != nil {
			t.degrade(t.panicked(StagePlanning, r))
			res = t.o.fallback.plan(tr)
		}
	}()
	plan, err := t.o.deps.Planner.Plan(tr, frame)
	if err != nil {
		t.degrade(&StageFailure{Stage: StagePlanning, Reason: ReasonInternal, Err: err})
		return t.o.fallback.plan(tr)
	}
	return plan
}

func (t *turn) summarize(ctx context.Context, msg string, frame SymptomFrame, tr TriageResult, plan ActionPlan) (res SummaryResult) {
	defer func() {
		if r := recover(); r != nil {
			t.degrade(t.panicked(StageSummarizing, r))
			res = t.o.fallback.summary(msg, frame, tr, plan)
		}
	}()
	out := t.o.deps.Summarizer.Summarize(ctx, msg, frame, tr, plan)
	t.degrade(out.Failure)
	return out.Summary
}

func (t *turn) panicked(stage Stage, r any) *StageFailure {
	t.logger.Error("stage panicked", zap.String("stage", string(stage)), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
	return &StageFailure{Stage: stage, Reason: ReasonInternal, Err: fmt.Errorf("panic: %v", r)}
}
