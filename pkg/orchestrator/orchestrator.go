// Package orchestrator coordinates one workflow execution end to end: admission,
// definition load, secret resolution, engine invocation, result enrichment and
// persistence.
package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"github.com/flowmill/flowmill/pkg/admission"
	"github.com/flowmill/flowmill/pkg/engine"
	"github.com/flowmill/flowmill/pkg/eventbus"
	"github.com/flowmill/flowmill/pkg/events"
	"github.com/flowmill/flowmill/pkg/models"
	"github.com/flowmill/flowmill/pkg/otelhelper"
	"github.com/flowmill/flowmill/pkg/persistence"
	"github.com/flowmill/flowmill/pkg/secrets"
	"github.com/flowmill/flowmill/pkg/template"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Orchestrator runs the execution sequence for a single workflow request. All
// state derived for one request is owned by that request; the only shared mutable
// resource is the admission registry behind the gate.
type Orchestrator struct {
	workflows    persistence.WorkflowRepository
	environments persistence.EnvironmentRepository
	gate         *admission.Gate
	decryptor    secrets.Decryptor
	serializer   engine.Serializer
	coordinator  *Coordinator
	enricher     *Enricher
	sink         Sink
	events       eventbus.EventPublisher
	tracer       trace.Tracer
	logger       *slog.Logger
}

func NewOrchestrator(
	store persistence.Persistence,
	gate *admission.Gate,
	decryptor secrets.Decryptor,
	serializer engine.Serializer,
	executor engine.Executor,
	publisher eventbus.EventPublisher,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		workflows:    store.WorkflowRepository(),
		environments: store.EnvironmentRepository(),
		gate:         gate,
		decryptor:    decryptor,
		serializer:   serializer,
		coordinator:  NewCoordinator(executor),
		enricher:     NewEnricher(store.StatsRepository(), logger),
		sink:         NewPersistenceSink(store.ExecutionLogRepository()),
		events:       publisher,
		tracer:       noop.NewTracerProvider().Tracer("flowmill"),
		logger:       logger,
	}
}

// WithTracer replaces the default no-op tracer.
func (o *Orchestrator) WithTracer(tracer trace.Tracer) *Orchestrator {
	o.tracer = tracer

	return o
}

// Execute runs one workflow execution attempt. On fatal errors the failure is
// logged and persisted, the admission reservation is released, and the error
// propagates to the caller unchanged.
func (o *Orchestrator) Execute(ctx context.Context, workflowID, requestID string, input map[string]any) (*models.EnrichedResult, error) {
	req := &models.ExecutionRequest{
		WorkflowID:  workflowID,
		RequestID:   requestID,
		ExecutionID: "exec-" + uuid.NewString(),
		Input:       input,
	}

	logger := o.logger.With(
		"workflow_id", req.WorkflowID,
		"request_id", req.RequestID,
		"execution_id", req.ExecutionID,
	)

	logger.Info("Starting workflow execution")

	workflow, err := o.workflows.ByID(ctx, workflowID)
	if err != nil {
		logger.Error("Failed to fetch workflow", "error", err)

		return nil, err
	}

	reservation, err := o.gate.CheckAndReserve(ctx, workflowID, requestID, workflow.OwnerID)
	if err != nil {
		logger.Warn("Execution not admitted", "error", err)

		return nil, err
	}

	// Release must happen on every exit path, after the success log has been
	// written. Releasing with a detached context so cancellation cannot leave the
	// key stuck in the registry.
	defer func() {
		if releaseErr := reservation.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			logger.Error("Failed to release admission reservation", "error", releaseErr)
		}
	}()

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "workflow.execute",
		attribute.String(otelhelper.WorkflowIDKey, req.WorkflowID),
		attribute.String(otelhelper.ExecutionIDKey, req.ExecutionID),
		attribute.String(otelhelper.RequestIDKey, req.RequestID),
		attribute.String(otelhelper.OwnerIDKey, workflow.OwnerID),
	)
	defer span.End()

	o.publish(ctx, req.WorkflowID, events.ExecutionStarted{
		BaseEvent: o.baseEvent(events.ExecutionStartedEvent, req),
	})

	enriched, err := o.execute(ctx, req, workflow, logger)
	if err != nil {
		o.fail(ctx, req, logger, err)
		otelhelper.SetError(span, err)

		return nil, err
	}

	if enriched.Success {
		o.enricher.RecordSuccess(ctx, workflow.ID, workflow.OwnerID)
	}

	if err := o.sink.LogSuccess(ctx, req, enriched); err != nil {
		logger.Error("Failed to persist execution result", "error", err)
		otelhelper.SetError(span, err)

		return nil, err
	}

	o.publish(ctx, req.WorkflowID, events.ExecutionCompleted{
		BaseEvent:  o.baseEvent(events.ExecutionCompletedEvent, req),
		Success:    enriched.Success,
		DurationMS: enriched.TotalDurationMS,
		BlockCount: len(enriched.Logs),
	})

	logger.Info("Workflow execution completed",
		"success", enriched.Success,
		"duration_ms", enriched.TotalDurationMS,
	)

	return enriched, nil
}

// execute covers the Loaded -> Resolved -> Executing -> Enriching transitions.
func (o *Orchestrator) execute(ctx context.Context, req *models.ExecutionRequest, workflow *models.Workflow, logger *slog.Logger) (*models.EnrichedResult, error) {
	compiled, err := o.serializer.Compile(workflow)
	if err != nil {
		return nil, err
	}

	envVars := map[string]string{}

	record, err := o.environments.ByOwner(ctx, workflow.OwnerID)
	if err != nil && !persistence.IsEnvironmentNotFound(err) {
		return nil, err
	}

	if record != nil {
		envVars = record.Variables
	}

	resolver := template.NewResolver(envVars, o.decryptor)

	blockStates, err := template.ResolveBlockStates(ctx, compiled.Graph.Blocks, resolver)
	if err != nil {
		return nil, err
	}

	for id, block := range blockStates {
		blockStates[id] = NormalizeResponseFormat(block, logger)
	}

	environment, err := resolver.ResolveAll(ctx)
	if err != nil {
		return nil, err
	}

	workflowVars := NormalizeWorkflowVariables(workflow.Variables, logger)

	result, err := o.coordinator.Run(ctx, &engine.ExecuteInput{
		Workflow:          compiled,
		BlockStates:       blockStates,
		Environment:       environment,
		Input:             req.Input,
		WorkflowVariables: workflowVars,
	})
	if err != nil {
		return nil, err
	}

	return o.enricher.Enrich(result), nil
}

func (o *Orchestrator) fail(ctx context.Context, req *models.ExecutionRequest, logger *slog.Logger, execErr error) {
	logger.Error("Workflow execution failed", "error", execErr)

	if sinkErr := o.sink.LogFailure(context.WithoutCancel(ctx), req, execErr); sinkErr != nil {
		logger.Error("Failed to persist execution failure", "error", sinkErr)
	}

	o.publish(ctx, req.WorkflowID, events.ExecutionFailed{
		BaseEvent: o.baseEvent(events.ExecutionFailedEvent, req),
		Error:     execErr.Error(),
	})
}

func (o *Orchestrator) baseEvent(eventType events.EventType, req *models.ExecutionRequest) events.BaseEvent {
	return events.BaseEvent{
		ID:          uuid.NewString(),
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		WorkflowID:  req.WorkflowID,
		ExecutionID: req.ExecutionID,
		RequestID:   req.RequestID,
	}
}

// publish is best-effort: eventing must never fail an execution.
func (o *Orchestrator) publish(ctx context.Context, key string, event eventbus.Event) {
	if o.events == nil {
		return
	}

	if err := o.events.Publish(ctx, key, event); err != nil {
		o.logger.Warn("Failed to publish execution event",
			"event_type", event.GetType(), "error", err)
	}
}
