package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/aidecisionlog/server/internal/decisionlog/types"
)

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// formatOnChainTime renders a block timestamp; zero means the event carried none.
func formatOnChainTime(ts uint64) string {
	if ts == 0 {
		return "-"
	}
	return time.Unix(int64(ts), 0).UTC().Format(time.RFC3339)
}

func writeEntryText(w io.Writer, i int, e types.LedgerEntry) {
	fmt.Fprintf(w, "\n--- Decision Log Entry %d ---\n", i+1)
	fmt.Fprintf(w, "Agent ID: %s\n", e.AgentID)
	fmt.Fprintf(w, "Action: %s\n", e.Action)
	fmt.Fprintf(w, "On-chain Reason Hash: %s\n", e.ReasonDigest.Hex())
	fmt.Fprintf(w, "On-chain Timestamp: %s\n", formatOnChainTime(e.Timestamp))
	fmt.Fprintf(w, "Transaction Hash: %s\n", e.TxHash)
	fmt.Fprintf(w, "Block Number: %d\n", e.BlockNumber)
}

func writeEntriesText(w io.Writer, entries []types.LedgerEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No decisions found on the ledger.")
		return
	}
	fmt.Fprintf(w, "Found %d decision(s).\n", len(entries))
	for i, e := range entries {
		writeEntryText(w, i, e)
	}
}
