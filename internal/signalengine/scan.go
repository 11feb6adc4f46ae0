package signalengine

import (
	"context"
	"fmt"

	"binarysignal/internal/model"
)

// EvaluateFunc evaluates a single pair.
type EvaluateFunc func(ctx context.Context, pair string) Outcome

// FaultFunc is told about every per-pair fault during a scan or auto-pick.
type FaultFunc func(pair string, err error)

// PairResult is the outcome for one pair of a scan pass.
type PairResult struct {
	Pair    string
	Outcome Outcome
}

// RunScanTick evaluates every pair of watchList in order and calls onSignal
// for each ok outcome. A fault or panic on one pair is reported to onFault and
// does not stop the remaining pairs. Iteration stops early only when ctx is
// cancelled. The returned slice holds one entry per evaluated pair.
func RunScanTick(ctx context.Context, watchList []string, evaluate EvaluateFunc, onSignal func(model.Signal), onFault FaultFunc) []PairResult {
	results := make([]PairResult, 0, len(watchList))
	for _, pair := range watchList {
		if ctx.Err() != nil {
			break
		}
		out := safeEvaluate(ctx, pair, evaluate)
		if out.Err != nil && onFault != nil {
			onFault(pair, out.Err)
		}
		if out.OK() && onSignal != nil {
			onSignal(*out.Signal)
		}
		results = append(results, PairResult{Pair: pair, Outcome: out})
	}
	return results
}

func safeEvaluate(ctx context.Context, pair string, evaluate EvaluateFunc) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = hold(pair, ReasonEvaluationError, fmt.Errorf("evaluate %s: panic: %v", pair, r))
		}
	}()
	out = evaluate(ctx, pair)
	if out.Signal == nil && out.Hold == nil {
		out = hold(pair, ReasonEvaluationError, fmt.Errorf("evaluate %s: empty outcome", pair))
	}
	return out
}

// PickBest returns the ok outcome with the strictly highest confidence; the
// first one seen wins ties. With no ok outcome it returns a no-suitable-market hold.
func PickBest(results []PairResult) Outcome {
	var best *model.Signal
	for _, r := range results {
		if !r.Outcome.OK() {
			continue
		}
		if best == nil || r.Outcome.Signal.Confidence > best.Confidence {
			best = r.Outcome.Signal
		}
	}
	if best == nil {
		return Outcome{Hold: &model.HoldRecord{Reason: ReasonNoSuitableMarket}}
	}
	return Outcome{Signal: best}
}

// AutoPick evaluates every watched pair in mode and keeps the best signal.
func (e *Engine) AutoPick(ctx context.Context, mode model.Mode) Outcome {
	results := RunScanTick(ctx, e.cfg.WatchList, func(ctx context.Context, pair string) Outcome {
		return e.ComputeSignal(ctx, pair, mode)
	}, nil, e.onFault)
	return PickBest(results)
}
