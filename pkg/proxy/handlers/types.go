package handlers

import (
	"context"

	"teclab/bitgate/pkg/orchestrator"
)

// Completer runs turns. *orchestrator.Orchestrator satisfies it.
type Completer interface {
	Complete(ctx context.Context, req orchestrator.Request) (*orchestrator.Result, error)
	Stream(ctx context.Context, req orchestrator.Request) (<-chan orchestrator.Event, error)
}

// ModelLister lists the configured model identifiers in a stable order.
// *registry.Registry satisfies it.
type ModelLister interface {
	IDs() []string
}
