package types

import (
	"github.com/aidecisionlog/server/internal/decisionlog/digest"
	"github.com/aidecisionlog/server/internal/decisionlog/record"
)

type LogResponse struct {
	Status     string        `json:"status"`
	Message    string        `json:"message"`
	TxHash     string        `json:"tx_hash"`
	ReasonHash digest.Digest `json:"reason_hash"`
	LoggedData record.Record `json:"logged_data"`
}

// LedgerEntry is one DecisionRecorded event as it sits on the ledger.
// Entries are immutable once created; TxIndex and LogIndex give their
// position within the block.
type LedgerEntry struct {
	AgentID      string        `json:"agent_id"`
	Action       string        `json:"action"`
	ReasonDigest digest.Digest `json:"reason_hash_on_chain"`
	Timestamp    uint64        `json:"timestamp_on_chain"`
	TxHash       string        `json:"transaction_hash"`
	BlockNumber  uint64        `json:"block_number"`
	TxIndex      uint          `json:"tx_index"`
	LogIndex     uint          `json:"log_index"`
}

type EntriesResponse struct {
	Entries        []LedgerEntry `json:"entries"`
	RetrievalError string        `json:"retrieval_error,omitempty"`
}

type VerifyRequest struct {
	Reason     string `json:"reason"`
	ReasonHash string `json:"reason_hash"`
}

type VerifyResponse struct {
	Verified       bool     `json:"verified"`
	CalculatedHash string   `json:"calculated_hash"`
	OnChainHash    string   `json:"on_chain_hash"`
	Hints          []string `json:"hints,omitempty"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Message string `json:"message"`
}
