package sandbox

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/sandflow/internal/metrics"
	"github.com/BaSui01/sandflow/store"
	"github.com/BaSui01/sandflow/types"
)

// EngineConfig tunes one engine instance.
type EngineConfig struct {
	// MaxConcurrent bounds simultaneously running scripts. Zero means 8.
	MaxConcurrent int64
	// MaxOutputBytes caps captured output per execution.
	MaxOutputBytes int
	// ReportRoles gates tools.run_report; empty opens it to all
	// enabled principals.
	ReportRoles []string
}

// Engine runs the full pipeline: identity check, audit, scan,
// mediate, sanitize, preprocess, environment build, execute, extract.
// Every stage failure surfaces as a structured ExecutionResult;
// Execute never returns an error and never panics across its
// boundary.
type Engine struct {
	cfg      EngineConfig
	scanner  *Scanner
	mediator *Mediator
	registry *Registry
	executor *Executor
	identity IdentityChecker
	backend  store.Backend
	readOnly *store.ReadOnly
	logger   *zap.Logger
	metrics  *metrics.Collector
	gate     *semaphore.Weighted
}

// NewEngine wires the pipeline over the given store backend. A nil
// backend disables the db/tools facades and the data_query prefetch.
func NewEngine(cfg EngineConfig, backend store.Backend, registry *Registry, checker IdentityChecker, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if registry == nil {
		registry = NewRegistry()
	}
	if checker == nil {
		checker = AllowAllIdentities{}
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 8
	}
	if cfg.MaxOutputBytes <= 0 {
		cfg.MaxOutputBytes = DefaultMaxOutputBytes
	}

	e := &Engine{
		cfg:      cfg,
		scanner:  NewScanner(logger),
		registry: registry,
		executor: NewExecutor(logger),
		identity: checker,
		backend:  backend,
		logger:   logger.With(zap.String("component", "engine")),
		metrics:  collector,
		gate:     semaphore.NewWeighted(cfg.MaxConcurrent),
	}
	if backend != nil {
		e.readOnly = store.NewReadOnly(backend, logger)
	}

	avail := snapshotAvailability(registry)
	e.mediator = NewMediator(avail.Available())
	return e
}

// Execute runs one request on behalf of identity and always returns a
// structured result.
func (e *Engine) Execute(ctx context.Context, identity string, req *types.ExecutionRequest) *types.ExecutionResult {
	if err := req.Validate(); err != nil {
		return e.rejectStage("validate", err)
	}

	principal, err := e.identity.CheckIdentity(identity)
	if err != nil {
		return e.rejectStage("identity", err)
	}

	if err := e.gate.Acquire(ctx, 1); err != nil {
		return e.rejectStage("gate", types.NewError(types.ErrInternalError, "engine is shutting down").WithCause(err).WithRetryable(true))
	}
	defer e.gate.Release(1)

	audit := BeginAudit(e.logger, principal.ID, req.Code)
	// every downstream call (store prefetch, script, report polling)
	// carries the execution id for log correlation
	ctx = types.WithExecutionID(ctx, audit.ExecutionID)
	if e.metrics != nil {
		e.metrics.ExecutionStarted()
		defer e.metrics.ExecutionFinished()
	}

	result := e.run(ctx, principal, req, audit)
	if e.metrics != nil {
		e.metrics.RecordExecution(executionStatus(result), audit.Duration())
	}
	return result
}

// run executes the pipeline stages after admission.
func (e *Engine) run(ctx context.Context, principal *types.Principal, req *types.ExecutionRequest, audit *AuditRecord) *types.ExecutionResult {
	if finding := e.scanner.Scan(req.Code, principal.ID); finding != nil {
		err := types.NewError(types.ErrSecurityViolation, finding.Message).
			WithRemediation("remove the flagged construct: " + finding.MatchedText)
		audit.End(err)
		return e.rejectStage("scanner", err)
	}

	mediated, err := e.mediator.Mediate(req.Code)
	if err != nil {
		audit.End(err)
		return e.rejectStage("mediator", err)
	}

	code, sanitizeReport, err := SanitizeUnicode(mediated.Code)
	if err != nil {
		audit.End(err)
		return e.rejectStage("sanitizer", err)
	}

	code, fixes := Preprocess(code)
	if e.metrics != nil && len(fixes) > 0 {
		e.metrics.RecordFixesApplied(len(fixes))
	}

	var data []store.Document
	if req.DataQuery != nil {
		if e.readOnly == nil {
			err := types.NewError(types.ErrStoreUnavailable, "no document store is configured for data_query")
			audit.End(err)
			return e.rejectStage("prefetch", err)
		}
		start := time.Now()
		data, err = e.readOnly.GetAll(ctx, store.Query{
			Collection: req.DataQuery.Collection,
			Filters:    req.DataQuery.Filters,
			Fields:     req.DataQuery.Fields,
			Limit:      req.DataQuery.Limit,
		})
		if e.metrics != nil {
			e.metrics.RecordStoreQuery("prefetch", time.Since(start))
		}
		if err != nil {
			audit.End(err)
			return e.rejectStage("prefetch", err)
		}
	}

	env, err := NewEnvironment(EnvConfig{
		Identity:       principal.ID,
		Registry:       e.registry,
		CaptureOutput:  req.Capture(),
		MaxOutputBytes: e.cfg.MaxOutputBytes,
		Data:           data,
		Bindings:       e.bindings(principal),
	})
	if err != nil {
		audit.End(err)
		return e.rejectStage("environment", err)
	}
	defer env.Close()

	execErr := e.executor.Execute(ctx, env, code, req.Timeout())
	audit.End(execErr)

	result := &types.ExecutionResult{
		Success:     execErr == nil,
		Output:      env.Output(),
		UserContext: principal.ID,
	}
	if sanitizeReport.Warning != "" {
		result.Warnings = append(result.Warnings, sanitizeReport.Warning)
	}
	if env.Truncated() {
		result.Warnings = append(result.Warnings, "output exceeded the size limit and was truncated")
		if e.metrics != nil {
			e.metrics.RecordOutputTruncated()
		}
	}
	result.FixesApplied = fixes

	if execErr != nil {
		fault := types.AsError(execErr)
		result.Error = &types.ExecutionError{
			Code:        fault.Code,
			Message:     fault.Message,
			Remediation: fault.Remediation,
		}
	} else {
		result.Variables = ExtractVariables(env, req.ReturnVariables)
	}

	result.ExecutionInfo = &types.ExecutionInfo{
		ExecutionID:       audit.ExecutionID,
		ExecutedBy:        principal.ID,
		LinesExecuted:     audit.CodeLines,
		VariablesReturned: len(result.Variables),
		DurationMS:        audit.Duration().Milliseconds(),
	}
	return result
}

// bindings assembles the store facade globals for one principal.
func (e *Engine) bindings(principal *types.Principal) map[string]ModuleBuilder {
	if e.backend == nil {
		return nil
	}
	tools := store.NewTools(e.backend, &store.RoleChecker{ReportRoles: e.cfg.ReportRoles}, principal, e.logger).
		WithMetrics(e.metrics)
	return map[string]ModuleBuilder{
		"db":    StoreBinding(e.readOnly),
		"tools": ToolsBinding(tools),
	}
}

// rejectStage converts a stage failure into a result and counts it.
func (e *Engine) rejectStage(stage string, err error) *types.ExecutionResult {
	if e.metrics != nil {
		e.metrics.RecordStageRejection(stage, string(types.GetErrorCode(err)))
	}
	return types.FailureResult(err)
}

// executionStatus maps a result onto a low-cardinality metric label.
func executionStatus(r *types.ExecutionResult) string {
	if r.Success {
		return "success"
	}
	if r.Error == nil {
		return "unknown"
	}
	return strings.ToLower(string(r.Error.Code))
}

// Availability exposes the engine's capability snapshot, for the
// health endpoint.
func (e *Engine) Availability() *Availability {
	return snapshotAvailability(e.registry)
}
