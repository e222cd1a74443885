package webhooks

import (
	"context"

	"github.com/goliatone/go-gateway/core"
)

// FilterEvaluator decides whether a subscription's filter expression admits
// an event. The expression language is deliberately unspecified; deployments
// plug in their own evaluator.
type FilterEvaluator interface {
	Matches(ctx context.Context, expr string, event core.Event) (bool, error)
}

// PassThroughFilter admits every event regardless of expression. It is the
// default until a real expression language is wired in.
type PassThroughFilter struct{}

func (PassThroughFilter) Matches(context.Context, string, core.Event) (bool, error) {
	return true, nil
}

var _ FilterEvaluator = PassThroughFilter{}
