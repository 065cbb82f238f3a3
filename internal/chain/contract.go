package chain

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

//go:embed abi/DecisionLogger.json
var defaultABI []byte

const (
	MethodRecordDecision  = "recordDecision"
	EventDecisionRecorded = "DecisionRecorded"
)

var (
	ErrInvalidAddress = errors.New("invalid contract address")
	ErrABIShape       = errors.New("ABI does not match the decision logger interface")
	ErrWrongEvent     = errors.New("log is not a DecisionRecorded event")
)

// DecisionRecorded is the decoded payload of one commitment event.
type DecisionRecorded struct {
	AgentID    string
	Action     string
	ReasonHash [32]byte
	Timestamp  *big.Int
}

// Contract binds the decision logger's address to its ABI.
type Contract struct {
	Address common.Address
	abi     abi.ABI
}

// NewContract parses abiJSON and checks it exposes recordDecision(string,
// string,bytes32) and DecisionRecorded(string,string,bytes32,uint256).
// A nil abiJSON selects the embedded ABI.
func NewContract(address common.Address, abiJSON []byte) (*Contract, error) {
	if abiJSON == nil {
		abiJSON = defaultABI
	}
	parsed, err := abi.JSON(bytes.NewReader(abiJSON))
	if err != nil {
		return nil, fmt.Errorf("parse ABI: %w", err)
	}
	if err := checkShape(parsed); err != nil {
		return nil, err
	}
	return &Contract{Address: address, abi: parsed}, nil
}

// LoadContract resolves a hex address and an optional ABI file path.
func LoadContract(address, abiPath string) (*Contract, error) {
	if !common.IsHexAddress(address) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	var abiJSON []byte
	if strings.TrimSpace(abiPath) != "" {
		b, err := os.ReadFile(abiPath)
		if err != nil {
			return nil, fmt.Errorf("read ABI %s: %w", abiPath, err)
		}
		abiJSON = b
	}
	return NewContract(common.HexToAddress(address), abiJSON)
}

func checkShape(a abi.ABI) error {
	m, ok := a.Methods[MethodRecordDecision]
	if !ok {
		return fmt.Errorf("%w: missing method %s", ErrABIShape, MethodRecordDecision)
	}
	if err := checkTypes(m.Inputs, "string", "string", "bytes32"); err != nil {
		return fmt.Errorf("%w: %s inputs: %v", ErrABIShape, MethodRecordDecision, err)
	}

	ev, ok := a.Events[EventDecisionRecorded]
	if !ok {
		return fmt.Errorf("%w: missing event %s", ErrABIShape, EventDecisionRecorded)
	}
	if ev.Anonymous {
		return fmt.Errorf("%w: %s must not be anonymous", ErrABIShape, EventDecisionRecorded)
	}
	for _, in := range ev.Inputs {
		if in.Indexed {
			return fmt.Errorf("%w: %s.%s must not be indexed", ErrABIShape, EventDecisionRecorded, in.Name)
		}
	}
	if err := checkTypes(ev.Inputs, "string", "string", "bytes32", "uint256"); err != nil {
		return fmt.Errorf("%w: %s inputs: %v", ErrABIShape, EventDecisionRecorded, err)
	}
	return nil
}

func checkTypes(args abi.Arguments, want ...string) error {
	if len(args) != len(want) {
		return fmt.Errorf("got %d arguments, want %d", len(args), len(want))
	}
	for i, a := range args {
		if got := a.Type.String(); got != want[i] {
			return fmt.Errorf("argument %d is %s, want %s", i, got, want[i])
		}
	}
	return nil
}

// PackRecordDecision returns calldata for recordDecision.
func (c *Contract) PackRecordDecision(agentID, action string, reasonHash [32]byte) ([]byte, error) {
	data, err := c.abi.Pack(MethodRecordDecision, agentID, action, reasonHash)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", MethodRecordDecision, err)
	}
	return data, nil
}

// UnpackRecordDecision decodes recordDecision calldata.
func (c *Contract) UnpackRecordDecision(data []byte) (agentID, action string, reasonHash [32]byte, err error) {
	m := c.abi.Methods[MethodRecordDecision]
	if len(data) < 4 || !bytes.Equal(data[:4], m.ID) {
		return "", "", reasonHash, fmt.Errorf("calldata does not call %s", MethodRecordDecision)
	}
	vals, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return "", "", reasonHash, fmt.Errorf("unpack %s: %w", MethodRecordDecision, err)
	}
	agentID, _ = vals[0].(string)
	action, _ = vals[1].(string)
	reasonHash, _ = vals[2].([32]byte)
	return agentID, action, reasonHash, nil
}

// DecisionRecordedTopic is topic[0] of every DecisionRecorded log.
func (c *Contract) DecisionRecordedTopic() common.Hash {
	return c.abi.Events[EventDecisionRecorded].ID
}

// PackDecisionRecorded encodes ev as log data, the inverse of
// UnpackDecisionRecorded.
func (c *Contract) PackDecisionRecorded(ev DecisionRecorded) ([]byte, error) {
	ts := ev.Timestamp
	if ts == nil {
		ts = new(big.Int)
	}
	return c.abi.Events[EventDecisionRecorded].Inputs.Pack(ev.AgentID, ev.Action, ev.ReasonHash, ts)
}

func (c *Contract) UnpackDecisionRecorded(lg types.Log) (DecisionRecorded, error) {
	if len(lg.Topics) == 0 || lg.Topics[0] != c.DecisionRecordedTopic() {
		return DecisionRecorded{}, ErrWrongEvent
	}

	vals, err := c.abi.Unpack(EventDecisionRecorded, lg.Data)
	if err != nil {
		return DecisionRecorded{}, fmt.Errorf("unpack %s: %w", EventDecisionRecorded, err)
	}
	if len(vals) != 4 {
		return DecisionRecorded{}, fmt.Errorf("unpack %s: got %d values", EventDecisionRecorded, len(vals))
	}

	var ev DecisionRecorded
	var ok bool
	if ev.AgentID, ok = vals[0].(string); !ok {
		return DecisionRecorded{}, fmt.Errorf("unpack %s: agentId has type %T", EventDecisionRecorded, vals[0])
	}
	if ev.Action, ok = vals[1].(string); !ok {
		return DecisionRecorded{}, fmt.Errorf("unpack %s: action has type %T", EventDecisionRecorded, vals[1])
	}
	if ev.ReasonHash, ok = vals[2].([32]byte); !ok {
		return DecisionRecorded{}, fmt.Errorf("unpack %s: reasonHash has type %T", EventDecisionRecorded, vals[2])
	}
	if ev.Timestamp, ok = vals[3].(*big.Int); !ok {
		return DecisionRecorded{}, fmt.Errorf("unpack %s: timestamp has type %T", EventDecisionRecorded, vals[3])
	}
	return ev, nil
}
