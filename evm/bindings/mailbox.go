package bindings

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const mailboxABIJSON = `[
	{"type":"function","name":"process","stateMutability":"payable","inputs":[{"name":"_metadata","type":"bytes"},{"name":"_message","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint32"}]},
	{"type":"function","name":"delivered","stateMutability":"view","inputs":[{"name":"_id","type":"bytes32"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"defaultIsm","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
	{"type":"function","name":"recipientIsm","stateMutability":"view","inputs":[{"name":"_recipient","type":"address"}],"outputs":[{"name":"","type":"address"}]},
	{"type":"event","name":"Dispatch","inputs":[{"name":"sender","type":"address","indexed":true},{"name":"destination","type":"uint32","indexed":true},{"name":"recipient","type":"bytes32","indexed":true},{"name":"message","type":"bytes","indexed":false}],"anonymous":false},
	{"type":"event","name":"ProcessId","inputs":[{"name":"messageId","type":"bytes32","indexed":true}],"anonymous":false}
]`

var mailboxABI = mustParseABI(mailboxABIJSON)

// Mailbox wraps the message-delivery contract.
type Mailbox struct {
	address common.Address
	caller  ContractCaller
}

func NewMailbox(address common.Address, caller ContractCaller) *Mailbox {
	return &Mailbox{address: address, caller: caller}
}

func (m *Mailbox) Address() common.Address {
	return m.address
}

// Nonce reads the dispatch sequence counter at blockNumber (nil for latest).
func (m *Mailbox) Nonce(ctx context.Context, blockNumber *big.Int) (uint32, error) {
	out, err := call(ctx, m.caller, mailboxABI, m.address, blockNumber, "nonce")
	if err != nil {
		return 0, err
	}
	nonce, ok := out[0].(uint32)
	if !ok {
		return 0, fmt.Errorf("unexpected nonce result type %T", out[0])
	}
	return nonce, nil
}

func (m *Mailbox) Delivered(ctx context.Context, id [32]byte) (bool, error) {
	out, err := call(ctx, m.caller, mailboxABI, m.address, nil, "delivered", id)
	if err != nil {
		return false, err
	}
	delivered, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("unexpected delivered result type %T", out[0])
	}
	return delivered, nil
}

func (m *Mailbox) DefaultIsm(ctx context.Context) (common.Address, error) {
	out, err := call(ctx, m.caller, mailboxABI, m.address, nil, "defaultIsm")
	if err != nil {
		return common.Address{}, err
	}
	ism, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected defaultIsm result type %T", out[0])
	}
	return ism, nil
}

func (m *Mailbox) RecipientIsm(ctx context.Context, recipient common.Address) (common.Address, error) {
	out, err := call(ctx, m.caller, mailboxABI, m.address, nil, "recipientIsm", recipient)
	if err != nil {
		return common.Address{}, err
	}
	ism, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("unexpected recipientIsm result type %T", out[0])
	}
	return ism, nil
}

// PackProcess returns the calldata of a process(metadata, message) call.
func (m *Mailbox) PackProcess(metadata, message []byte) []byte {
	// Packing bytes arguments against a static ABI cannot fail.
	data, err := mailboxABI.Pack("process", metadata, message)
	if err != nil {
		panic(fmt.Sprintf("failed to pack process call: %v", err))
	}
	return data
}

// DispatchTopic returns the Dispatch event signature topic.
func (m *Mailbox) DispatchTopic() common.Hash {
	return mailboxABI.Events["Dispatch"].ID
}

// ProcessIdTopic returns the ProcessId event signature topic.
func (m *Mailbox) ProcessIdTopic() common.Hash {
	return mailboxABI.Events["ProcessId"].ID
}

// UnpackDispatch decodes the raw message bytes from a Dispatch log.
func (m *Mailbox) UnpackDispatch(log types.Log) ([]byte, error) {
	out, err := mailboxABI.Unpack("Dispatch", log.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack Dispatch log: %w", err)
	}
	message, ok := out[0].([]byte)
	if !ok {
		return nil, fmt.Errorf("unexpected Dispatch message type %T", out[0])
	}
	return message, nil
}

// UnpackProcessId extracts the delivered message id from a ProcessId log.
func (m *Mailbox) UnpackProcessId(log types.Log) ([32]byte, error) {
	if len(log.Topics) < 2 {
		return [32]byte{}, fmt.Errorf("ProcessId log missing messageId topic")
	}
	return [32]byte(log.Topics[1]), nil
}

// ABI exposes the parsed mailbox ABI for callers that pack calls directly.
func (m *Mailbox) ABI() abi.ABI {
	return mailboxABI
}
