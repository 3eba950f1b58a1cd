package protocol

import "errors"

// Error taxonomy shared by all chain adapters. Callers classify with
// errors.Is; adapters wrap the underlying cause with %w so the transport
// detail is preserved.
var (
	// ErrTransport indicates a network or RPC failure. Usually retryable by
	// the caller.
	ErrTransport = errors.New("transport failure")

	// ErrProtocolDecode indicates a malformed event or log payload. Not
	// retryable: it points at a contract/adapter version mismatch.
	ErrProtocolDecode = errors.New("protocol decode failure")

	// ErrFinalityUnknown is returned when the ledger reports no finalized
	// block at all, e.g. a node that is still syncing.
	ErrFinalityUnknown = errors.New("unable to get finalized block number")

	// ErrFinalityTimeout is returned when a submitted transaction's block is
	// not reported finalized within the configured retry budget.
	ErrFinalityTimeout = errors.New("timed out waiting for block finality")

	// ErrInclusionTimeout is returned when a broadcast transaction never
	// produces a receipt, e.g. after being dropped from the mempool.
	ErrInclusionTimeout = errors.New("timed out waiting for transaction inclusion")

	// ErrSubmission indicates a transaction broadcast was rejected.
	ErrSubmission = errors.New("transaction broadcast failed")

	// ErrGasFill indicates gas parameters could not be resolved for a
	// transaction.
	ErrGasFill = errors.New("unable to fill gas parameters")

	// ErrGasLimitUnavailable indicates a built contract call carried no gas
	// limit. The call builder must always set one, so this is an invariant
	// violation rather than a user error.
	ErrGasLimitUnavailable = errors.New("contract call has no gas limit")

	// ErrLagExceedsHistory indicates the caller requested a historical read
	// older than the available chain history.
	ErrLagExceedsHistory = errors.New("requested lag exceeds chain history")
)
