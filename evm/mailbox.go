package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/crosslane/crosslane-evm/evm/bindings"
	"github.com/crosslane/crosslane-evm/protocol"
)

// Recipient ISM assignments change rarely; a short TTL keeps the cache
// honest without hammering the node on busy routes.
const (
	ismCacheSize = 1024
	ismCacheTTL  = 5 * time.Minute
)

// Mailbox adapts the onchain mailbox contract to the protocol interface.
// Delivery paths go through a Submitter bound to the relaying account; reads
// go straight to the node.
type Mailbox struct {
	lggr         *zap.SugaredLogger
	client       Client
	domain       protocol.Domain
	binding      *bindings.Mailbox
	submitter    *Submitter
	multicall    common.Address
	maxBatchSize int
	isRollup     bool
	ismCache     *expirable.LRU[common.Address, common.Address]
}

var _ protocol.Mailbox = (*Mailbox)(nil)

// NewMailbox builds the mailbox adapter for one chain connection.
func NewMailbox(lggr *zap.SugaredLogger, client Client, conf ConnectionConf, submitter *Submitter) *Mailbox {
	return &Mailbox{
		lggr:         lggr.Named("mailbox"),
		client:       client,
		domain:       protocol.Domain(conf.Domain),
		binding:      bindings.NewMailbox(conf.MailboxAddress, client),
		submitter:    submitter,
		multicall:    conf.Multicall(),
		maxBatchSize: conf.Batch.MaxBatchSize,
		isRollup:     conf.IsRollup,
		ismCache:     expirable.NewLRU[common.Address, common.Address](ismCacheSize, nil, ismCacheTTL),
	}
}

// Domain returns the protocol domain this mailbox serves.
func (m *Mailbox) Domain() protocol.Domain {
	return m.domain
}

// Address returns the mailbox contract address, left-padded to 32 bytes.
func (m *Mailbox) Address() protocol.Bytes32 {
	return addressToBytes32(m.binding.Address())
}

// Count returns the dispatch count as of the finalized tip. The tip is
// resolved first and the counter read pinned to that exact height, so the
// two cannot disagree.
func (m *Mailbox) Count(ctx context.Context) (uint32, error) {
	tip, err := FinalizedBlockNumber(ctx, m.client)
	if err != nil {
		return 0, err
	}

	nonce, err := m.binding.Nonce(ctx, new(big.Int).SetUint64(tip))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to read mailbox nonce: %w", protocol.ErrTransport, err)
	}
	return nonce, nil
}

func (m *Mailbox) Delivered(ctx context.Context, id protocol.Bytes32) (bool, error) {
	delivered, err := m.binding.Delivered(ctx, id)
	if err != nil {
		return false, fmt.Errorf("%w: failed to read delivered status of %s: %w", protocol.ErrTransport, id, err)
	}
	return delivered, nil
}

func (m *Mailbox) DefaultISM(ctx context.Context) (protocol.Bytes32, error) {
	ism, err := m.binding.DefaultIsm(ctx)
	if err != nil {
		return protocol.Bytes32{}, fmt.Errorf("%w: failed to read default ISM: %w", protocol.ErrTransport, err)
	}
	return addressToBytes32(ism), nil
}

// RecipientISM resolves the verification module for a recipient. The
// default-ISM fallback happens onchain, so a cached entry is already the
// resolved module.
func (m *Mailbox) RecipientISM(ctx context.Context, recipient protocol.Bytes32) (protocol.Bytes32, error) {
	addr := bytes32ToAddress(recipient)
	if ism, ok := m.ismCache.Get(addr); ok {
		return addressToBytes32(ism), nil
	}

	ism, err := m.binding.RecipientIsm(ctx, addr)
	if err != nil {
		return protocol.Bytes32{}, fmt.Errorf("%w: failed to resolve ISM for recipient %s: %w", protocol.ErrTransport, recipient, err)
	}
	m.ismCache.Add(addr, ism)
	return addressToBytes32(ism), nil
}

// ProcessCalldata returns the raw calldata of a process(metadata, message)
// call without touching the network.
func (m *Mailbox) ProcessCalldata(message *protocol.Message, metadata []byte) []byte {
	return m.binding.PackProcess(metadata, message.Encode())
}

// processCall assembles a delivery call, estimating the gas limit when the
// operation does not pin one. The returned call always carries a limit.
func (m *Mailbox) processCall(ctx context.Context, message *protocol.Message, metadata []byte, gasLimit *big.Int) (CandidateCall, error) {
	call := CandidateCall{
		To:       m.binding.Address(),
		Data:     m.ProcessCalldata(message, metadata),
		GasLimit: gasLimit,
	}
	return m.submitter.EnsureGasLimit(ctx, call)
}

// Process delivers one message and blocks until the containing block is
// finalized.
func (m *Mailbox) Process(ctx context.Context, message *protocol.Message, metadata []byte, gasLimit *big.Int) (protocol.TxOutcome, error) {
	call, err := m.processCall(ctx, message, metadata, gasLimit)
	if err != nil {
		return protocol.TxOutcome{}, err
	}

	m.lggr.Infow("processing message", "id", message.ID(), "nonce", message.Nonce, "origin", message.Origin)
	return m.submitter.Submit(ctx, call)
}

// TryProcessBatch attempts to deliver the operations as one multicall
// aggregate. Every operation is simulated first; only the subset that
// simulates successfully is submitted. The returned excluded indices are the
// caller's signal to retry those operations on the single-delivery path.
//
// A failing simulation probe aborts with an error rather than excluding
// everything: a transport blip says nothing about the operations themselves.
func (m *Mailbox) TryProcessBatch(ctx context.Context, ops []protocol.DeliveryOperation) (protocol.BatchResult, error) {
	if len(ops) == 0 {
		return protocol.BatchResult{}, nil
	}
	if m.maxBatchSize > 0 && len(ops) > m.maxBatchSize {
		return protocol.BatchResult{}, fmt.Errorf("batch of %d exceeds configured maximum %d", len(ops), m.maxBatchSize)
	}

	calls := make([]CandidateCall, len(ops))
	g, gctx := errgroup.WithContext(ctx)
	for i, op := range ops {
		g.Go(func() error {
			call, err := m.processCall(gctx, op.Message, op.Metadata, op.GasLimit)
			if err != nil {
				return fmt.Errorf("failed to build delivery call for %s: %w", op.Message.ID(), err)
			}
			calls[i] = call
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return protocol.BatchResult{}, err
	}

	plan, err := SimulateBatch(ctx, m.submitter, m.multicall, calls)
	if err != nil {
		return protocol.BatchResult{}, err
	}
	if !plan.Viable() {
		m.lggr.Infow("batch not viable, falling back to single deliveries",
			"size", len(ops), "excluded", len(plan.ExcludedIndices))
		return protocol.FailedBatchResult(len(ops)), nil
	}

	m.lggr.Infow("submitting batch", "size", len(ops), "included", len(plan.IncludedIndices), "excluded", plan.ExcludedIndices)
	outcome, err := m.submitter.Submit(ctx, plan.Aggregate)
	if err != nil {
		return protocol.BatchResult{}, err
	}
	return protocol.BatchResult{
		Outcome:         &outcome,
		ExcludedIndices: plan.ExcludedIndices,
	}, nil
}

func addressToBytes32(a common.Address) protocol.Bytes32 {
	var b protocol.Bytes32
	copy(b[12:], a.Bytes())
	return b
}

func bytes32ToAddress(b protocol.Bytes32) common.Address {
	return common.BytesToAddress(b[12:])
}
