package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/crosslane/crosslane-evm/evm/bindings"
	"github.com/crosslane/crosslane-evm/protocol"
)

var defaultMulticallAddress = bindings.DefaultMulticall3Address

// minBatchSuccesses is the smallest simulated-success count worth
// aggregating. Below it the multicall overhead outweighs batching, so the
// whole plan is abandoned and every operation falls back to the single path.
const minBatchSuccesses = 2

// BatchPlan is the outcome of simulating a candidate batch: the aggregate
// call covering the surviving operations, plus the index partition relative
// to the original call list.
type BatchPlan struct {
	Aggregate       CandidateCall
	IncludedIndices []int
	ExcludedIndices []int
}

// Viable reports whether the plan carries a submittable aggregate.
func (p BatchPlan) Viable() bool {
	return len(p.IncludedIndices) >= minBatchSuccesses
}

// buildAggregate wraps calls into one aggregate3 invocation. The aggregate
// gas limit is the sum of the per-call limits, so every call must carry one.
func buildAggregate(multicall common.Address, calls []CandidateCall, allowFailure bool) (CandidateCall, error) {
	entries := make([]bindings.Multicall3Call, len(calls))
	gasLimit := new(big.Int)
	value := new(big.Int)
	for i, call := range calls {
		entries[i] = bindings.Multicall3Call{
			Target:       call.To,
			AllowFailure: allowFailure,
			CallData:     call.Data,
		}
		if call.GasLimit == nil {
			return CandidateCall{}, fmt.Errorf("%w: batched call %d", protocol.ErrGasLimitUnavailable, i)
		}
		gasLimit.Add(gasLimit, call.GasLimit)
		if call.Value != nil {
			value.Add(value, call.Value)
		}
	}

	data, err := bindings.PackAggregate3(entries)
	if err != nil {
		return CandidateCall{}, err
	}
	return CandidateCall{
		To:       multicall,
		Data:     data,
		GasLimit: gasLimit,
		Value:    value,
	}, nil
}

// SimulateBatch dry-runs the calls as one failure-tolerant aggregate and
// partitions them by simulated outcome. When enough calls survive, the
// returned plan carries a strict aggregate (allowFailure off) over exactly
// the surviving subset, in original order.
//
// A failure of the probe itself is reported as an error: it says nothing
// about the individual calls.
func SimulateBatch(ctx context.Context, submitter *Submitter, multicall common.Address, calls []CandidateCall) (BatchPlan, error) {
	probe, err := buildAggregate(multicall, calls, true)
	if err != nil {
		return BatchPlan{}, err
	}

	raw, err := submitter.DryRun(ctx, probe)
	if err != nil {
		return BatchPlan{}, fmt.Errorf("batch simulation probe failed: %w", err)
	}

	results, err := bindings.UnpackAggregate3(raw)
	if err != nil {
		return BatchPlan{}, fmt.Errorf("%w: %w", protocol.ErrProtocolDecode, err)
	}
	if len(results) != len(calls) {
		return BatchPlan{}, fmt.Errorf("%w: simulated %d calls, got %d results", protocol.ErrProtocolDecode, len(calls), len(results))
	}

	var plan BatchPlan
	var surviving []CandidateCall
	for i, result := range results {
		if result.Success {
			plan.IncludedIndices = append(plan.IncludedIndices, i)
			surviving = append(surviving, calls[i])
		} else {
			plan.ExcludedIndices = append(plan.ExcludedIndices, i)
		}
	}

	if !plan.Viable() {
		plan.ExcludedIndices = allIndices(len(calls))
		plan.IncludedIndices = nil
		return plan, nil
	}

	plan.Aggregate, err = buildAggregate(multicall, surviving, false)
	if err != nil {
		return BatchPlan{}, err
	}
	return plan, nil
}

func allIndices(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
