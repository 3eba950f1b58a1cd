package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"go.uber.org/zap"

	"github.com/crosslane/crosslane-evm/protocol"
)

// gasEstimateBuffer is added on top of every node gas estimate. Estimates
// against a pending state can undershoot once prior deliveries in the same
// block touch the same storage.
const gasEstimateBuffer = 75_000

const (
	defaultReceiptPollInterval = 3 * time.Second
	defaultReceiptWait         = 5 * time.Minute
)

// CandidateCall is a fully-built contract call awaiting gas parameters
// and submission.
type CandidateCall struct {
	To        common.Address
	Data      []byte
	Value     *big.Int
	GasLimit  *big.Int
	GasPrice  *big.Int
	GasFeeCap *big.Int
	GasTipCap *big.Int
}

// Submitter fills gas parameters, broadcasts transactions and waits for the
// containing block to finalize. A Submitter is bound to one signing account.
type Submitter struct {
	lggr        *zap.SugaredLogger
	client      Client
	signer      Signer
	overrides   TransactionOverrides
	finality    FinalityConfig
	receiptPoll time.Duration
	receiptWait time.Duration
}

// SubmitterOption is the functional option type for Submitter.
type SubmitterOption func(*Submitter)

// WithReceiptPollInterval overrides how often the submitter polls for a
// transaction receipt after broadcast.
func WithReceiptPollInterval(d time.Duration) SubmitterOption {
	return func(s *Submitter) {
		s.receiptPoll = d
	}
}

// WithReceiptWait bounds how long the submitter waits for a broadcast
// transaction's receipt before giving up with ErrInclusionTimeout.
func WithReceiptWait(d time.Duration) SubmitterOption {
	return func(s *Submitter) {
		s.receiptWait = d
	}
}

// NewSubmitter creates a Submitter for the given signing account.
func NewSubmitter(lggr *zap.SugaredLogger, client Client, signer Signer, overrides TransactionOverrides, finality FinalityConfig, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		lggr:        lggr,
		client:      client,
		signer:      signer,
		overrides:   overrides,
		finality:    finality,
		receiptPoll: defaultReceiptPollInterval,
		receiptWait: defaultReceiptWait,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureGasLimit resolves only the gas limit of a call, leaving pricing to
// submission time. Batch planning needs per-call limits long before any
// aggregate is priced.
func (s *Submitter) EnsureGasLimit(ctx context.Context, call CandidateCall) (CandidateCall, error) {
	if err := s.fillGasLimit(ctx, &call); err != nil {
		return CandidateCall{}, err
	}
	return call, nil
}

// FillGasParams resolves the gas limit and price fields of a call according
// to the configured override policy. The returned call always carries a gas
// limit.
func (s *Submitter) FillGasParams(ctx context.Context, call CandidateCall) (CandidateCall, error) {
	if err := s.fillGasLimit(ctx, &call); err != nil {
		return CandidateCall{}, err
	}
	if err := s.fillGasPrice(ctx, &call); err != nil {
		return CandidateCall{}, err
	}
	return call, nil
}

func (s *Submitter) fillGasLimit(ctx context.Context, call *CandidateCall) error {
	if call.GasLimit != nil {
		return nil
	}
	if s.overrides.GasLimit != nil {
		call.GasLimit = new(big.Int).Set(s.overrides.GasLimit)
		return nil
	}

	estimate, err := s.client.EstimateGas(ctx, ethereum.CallMsg{
		From:  s.from(),
		To:    &call.To,
		Data:  call.Data,
		Value: call.Value,
	})
	if err != nil {
		return fmt.Errorf("%w: gas estimation failed: %w", protocol.ErrGasFill, err)
	}

	limit := applyMultiplier(new(big.Int).SetUint64(estimate), s.overrides.GasLimitMultiplier)
	call.GasLimit = limit.Add(limit, big.NewInt(gasEstimateBuffer))
	return nil
}

func (s *Submitter) fillGasPrice(ctx context.Context, call *CandidateCall) error {
	if call.GasPrice != nil || call.GasFeeCap != nil {
		return nil
	}

	o := s.overrides
	switch {
	case o.GasPrice != nil:
		call.GasPrice = new(big.Int).Set(o.GasPrice)
	case o.MaxFeePerGas != nil:
		call.GasFeeCap = new(big.Int).Set(o.MaxFeePerGas)
		if o.MaxPriorityFeePerGas != nil {
			call.GasTipCap = new(big.Int).Set(o.MaxPriorityFeePerGas)
		} else {
			call.GasTipCap = new(big.Int).Set(o.MaxFeePerGas)
		}
	default:
		return s.fillEstimatedGasPrice(ctx, call)
	}
	return nil
}

// fillEstimatedGasPrice asks the node for current pricing: EIP-1559 fees
// when the chain exposes a base fee, legacy gas price otherwise.
func (s *Submitter) fillEstimatedGasPrice(ctx context.Context, call *CandidateCall) error {
	head, err := s.client.HeaderByNumber(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: failed to read chain head: %w", protocol.ErrGasFill, err)
	}

	if head.BaseFee != nil {
		tip, err := s.client.SuggestGasTipCap(ctx)
		if err != nil {
			return fmt.Errorf("%w: tip suggestion failed: %w", protocol.ErrGasFill, err)
		}
		feeCap := new(big.Int).Add(
			tip,
			new(big.Int).Mul(head.BaseFee, big.NewInt(2)),
		)
		call.GasTipCap = applyMultiplier(tip, s.overrides.GasPriceMultiplier)
		call.GasFeeCap = applyMultiplier(feeCap, s.overrides.GasPriceMultiplier)
		return nil
	}

	price, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("%w: gas price suggestion failed: %w", protocol.ErrGasFill, err)
	}
	call.GasPrice = applyMultiplier(price, s.overrides.GasPriceMultiplier)
	return nil
}

func applyMultiplier(v *big.Int, multiplier float64) *big.Int {
	if multiplier <= 0 || multiplier == 1 {
		return v
	}
	product := new(big.Float).Mul(new(big.Float).SetInt(v), big.NewFloat(multiplier))
	// Round to nearest: truncation would undershoot for multipliers that are
	// not exactly representable.
	scaled, _ := product.Add(product, big.NewFloat(0.5)).Int(nil)
	return scaled
}

// DryRun executes a call as a read-only probe against the latest state and
// returns the raw result.
func (s *Submitter) DryRun(ctx context.Context, call CandidateCall) ([]byte, error) {
	out, err := s.client.CallContract(ctx, ethereum.CallMsg{
		From:  s.from(),
		To:    &call.To,
		Data:  call.Data,
		Value: call.Value,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: dry run failed: %w", protocol.ErrTransport, err)
	}
	return out, nil
}

// Submit fills gas parameters, broadcasts the call and blocks until the
// containing block is finalized. Past the broadcast point the submission is
// no longer cancellable: a possibly-accepted transaction is never abandoned
// mid-flight, so the receipt and finality waits run detached from the
// caller's cancellation.
func (s *Submitter) Submit(ctx context.Context, call CandidateCall) (protocol.TxOutcome, error) {
	if s.signer == nil {
		return protocol.TxOutcome{}, fmt.Errorf("%w: no signing key configured", protocol.ErrSubmission)
	}

	filled, err := s.FillGasParams(ctx, call)
	if err != nil {
		return protocol.TxOutcome{}, err
	}

	nonce, err := s.client.PendingNonceAt(ctx, s.from())
	if err != nil {
		return protocol.TxOutcome{}, fmt.Errorf("%w: failed to read account nonce: %w", protocol.ErrSubmission, err)
	}
	chainID, err := s.client.ChainID(ctx)
	if err != nil {
		return protocol.TxOutcome{}, fmt.Errorf("%w: failed to read chain id: %w", protocol.ErrSubmission, err)
	}

	tx := buildTransaction(filled, nonce)
	signed, err := s.signer.SignTx(tx, chainID)
	if err != nil {
		return protocol.TxOutcome{}, fmt.Errorf("%w: signing failed: %w", protocol.ErrSubmission, err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return protocol.TxOutcome{}, fmt.Errorf("%w: %w", protocol.ErrSubmission, err)
	}
	s.lggr.Infow("submitted transaction", "tx", signed.Hash().Hex(), "nonce", nonce)

	waitCtx := context.WithoutCancel(ctx)
	receipt, err := s.waitMined(waitCtx, signed.Hash())
	if err != nil {
		return protocol.TxOutcome{}, err
	}

	if err := s.ensureBlockFinalized(waitCtx, receipt.BlockNumber.Uint64()); err != nil {
		return protocol.TxOutcome{}, err
	}

	outcome := protocol.TxOutcome{
		TxHash:      protocol.Bytes32(receipt.TxHash),
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     new(big.Int).SetUint64(receipt.GasUsed),
		Success:     receipt.Status == types.ReceiptStatusSuccessful,
	}
	s.lggr.Infow("transaction finalized",
		"tx", receipt.TxHash.Hex(),
		"block", outcome.BlockNumber,
		"gasUsed", receipt.GasUsed,
		"success", outcome.Success,
	)
	return outcome, nil
}

func buildTransaction(call CandidateCall, nonce uint64) *types.Transaction {
	if call.GasFeeCap != nil {
		return types.NewTx(&types.DynamicFeeTx{
			To:        &call.To,
			Nonce:     nonce,
			Gas:       call.GasLimit.Uint64(),
			GasFeeCap: call.GasFeeCap,
			GasTipCap: call.GasTipCap,
			Value:     call.Value,
			Data:      call.Data,
		})
	}
	return types.NewTx(&types.LegacyTx{
		To:       &call.To,
		Nonce:    nonce,
		Gas:      call.GasLimit.Uint64(),
		GasPrice: call.GasPrice,
		Value:    call.Value,
		Data:     call.Data,
	})
}

// waitMined polls for the transaction receipt. The wait is bounded: a
// transaction dropped from the mempool never produces a receipt, so an
// exhausted budget surfaces as ErrInclusionTimeout instead of blocking the
// submission forever.
func (s *Submitter) waitMined(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.receiptPoll)
	defer ticker.Stop()
	deadline := time.NewTimer(s.receiptWait)
	defer deadline.Stop()

	for {
		receipt, err := s.client.TransactionReceipt(ctx, txHash)
		if err == nil && receipt != nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: gave up waiting for receipt of %s: %w", protocol.ErrTransport, txHash.Hex(), ctx.Err())
		case <-deadline.C:
			return nil, fmt.Errorf("%w: no receipt for %s within %s", protocol.ErrInclusionTimeout, txHash.Hex(), s.receiptWait)
		case <-ticker.C:
		}
	}
}

// ensureBlockFinalized polls the finality oracle with exponential backoff
// until the block is reported finalized or the attempt budget is exhausted.
func (s *Submitter) ensureBlockFinalized(ctx context.Context, blockNumber uint64) error {
	retry := retrypolicy.NewBuilder[uint64]().
		HandleIf(func(tip uint64, err error) bool {
			return err != nil || tip < blockNumber
		}).
		WithMaxRetries(s.finality.MaxAttempts).
		WithBackoff(s.finality.InitialBackoff, s.finality.MaxBackoff).
		OnRetry(func(event failsafe.ExecutionEvent[uint64]) {
			s.lggr.Debugw("block not yet finalized, retrying", "block", blockNumber, "attempt", event.Attempts())
		}).
		Build()

	tip, err := failsafe.With(retry).
		WithContext(ctx).
		Get(func() (uint64, error) {
			return FinalizedBlockNumber(ctx, s.client)
		})
	if err != nil {
		return fmt.Errorf("%w: block %d still unfinalized after %d attempts: %w",
			protocol.ErrFinalityTimeout, blockNumber, s.finality.MaxAttempts, err)
	}
	if tip < blockNumber {
		return fmt.Errorf("%w: block %d still unfinalized after %d attempts (finalized tip %d)",
			protocol.ErrFinalityTimeout, blockNumber, s.finality.MaxAttempts, tip)
	}
	return nil
}

func (s *Submitter) from() common.Address {
	if s.signer == nil {
		return common.Address{}
	}
	return s.signer.Address()
}
