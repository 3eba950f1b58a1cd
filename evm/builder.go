package evm

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/crosslane/crosslane-evm/logging"
	"github.com/crosslane/crosslane-evm/protocol"
)

// Builder wires the adapter components for one chain connection. Components
// share a single client handle and, when a signer is supplied, a single
// submitter bound to that account. Without a signer the mailbox still serves
// reads, estimates and simulations; submissions fail with ErrSubmission.
type Builder struct {
	lggr   *zap.SugaredLogger
	conf   ConnectionConf
	client Client
	signer Signer
}

// BuilderOption is the functional option type for Builder.
type BuilderOption func(*Builder)

// WithSigner attaches the submitting account.
func WithSigner(signer Signer) BuilderOption {
	return func(b *Builder) {
		b.signer = signer
	}
}

// WithClient injects a pre-established client instead of dialing the
// configured endpoint.
func WithClient(client Client) BuilderOption {
	return func(b *Builder) {
		b.client = client
	}
}

// NewBuilder prepares a builder for the given connection. The endpoint is
// dialed lazily on the first component request unless a client was injected.
// A nil logger falls back to the default production logger.
func NewBuilder(lggr *zap.SugaredLogger, conf ConnectionConf, opts ...BuilderOption) *Builder {
	if lggr == nil {
		var err error
		if lggr, err = logging.NewLogger(); err != nil {
			lggr = zap.NewNop().Sugar()
		}
	}
	b := &Builder{
		lggr: lggr.With("domain", conf.Domain),
		conf: conf,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Connect establishes the client connection if one is not already held.
func (b *Builder) Connect(ctx context.Context) error {
	if b.client != nil {
		return nil
	}
	if b.conf.RPCURL == "" {
		return fmt.Errorf("no RPC endpoint configured for domain %d", b.conf.Domain)
	}

	client, err := Dial(ctx, b.conf.RPCURL)
	if err != nil {
		return err
	}
	b.client = client
	return nil
}

// CanSign reports whether submissions are possible on this connection.
func (b *Builder) CanSign() bool {
	return b.signer != nil
}

func (b *Builder) submitter() *Submitter {
	return NewSubmitter(b.lggr, b.client, b.signer, b.conf.TransactionOverrides, b.conf.Finality)
}

// Mailbox builds the mailbox adapter.
func (b *Builder) Mailbox(ctx context.Context) (*Mailbox, error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return NewMailbox(b.lggr, b.client, b.conf, b.submitter()), nil
}

// MerkleTreeHook builds the commitment-tree reader.
func (b *Builder) MerkleTreeHook(ctx context.Context) (*MerkleTreeHookAdapter, error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return NewMerkleTreeHookAdapter(b.lggr, b.client, b.conf), nil
}

// DispatchIndexer builds the dispatched-message indexer.
func (b *Builder) DispatchIndexer(ctx context.Context) (protocol.SequenceAwareIndexer[*protocol.Message], error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return NewMailboxDispatchIndexer(b.lggr, b.client, b.conf), nil
}

// DeliveryIndexer builds the delivery-confirmation indexer.
func (b *Builder) DeliveryIndexer(ctx context.Context) (protocol.SequenceAwareIndexer[protocol.Delivery], error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return NewMailboxDeliveryIndexer(b.lggr, b.client, b.conf), nil
}

// TreeInsertionIndexer builds the merkle-insertion indexer.
func (b *Builder) TreeInsertionIndexer(ctx context.Context) (protocol.SequenceAwareIndexer[protocol.TreeInsertion], error) {
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	return NewMerkleTreeHookIndexer(b.lggr, b.client, b.conf), nil
}
