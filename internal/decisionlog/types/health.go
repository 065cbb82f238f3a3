package types

type HealthResponse struct {
	Status          string  `json:"status"`
	LedgerConnected bool    `json:"ledger_connected"`
	BlockNumber     *uint64 `json:"block_number,omitempty"`
	ServerTime      string  `json:"server_time"`
}
