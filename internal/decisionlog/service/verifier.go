package service

import (
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/aidecisionlog/server/internal/decisionlog/digest"
)

const (
	HintMalformed  = "the on-chain hash is not a 32-byte hex value"
	HintWhitespace = "the text matches once leading and trailing whitespace is removed; the exact original whitespace is required"
	HintNFC        = "the text matches in Unicode NFC form; submit it with the same normalization that was logged"
	HintNFD        = "the text matches in Unicode NFD form; submit it with the same normalization that was logged"
	HintExact      = "verification needs the exact original text: casing, whitespace, field order and UTF-8 encoding must all match"
)

// Verify reports whether claimed is the text committed as onChainHex.
// The hex may carry a 0x prefix and either case. A mismatch, including an
// unparseable onChainHex, is false and not an error.
func Verify(claimed, onChainHex string) bool {
	onChain, err := digest.Parse(onChainHex)
	if err != nil {
		return false
	}
	return digest.Of(claimed) == onChain
}

// Verification is the outcome of Explain.
type Verification struct {
	Verified   bool
	Calculated digest.Digest
	OnChain    string
	Hints      []string
}

// Explain verifies like Verify and, on a mismatch, lists likely causes for
// an operator. Hints are suggestions; only Verified is authoritative.
func Explain(claimed, onChainHex string) Verification {
	v := Verification{
		Calculated: digest.Of(claimed),
		OnChain:    onChainHex,
	}

	onChain, err := digest.Parse(onChainHex)
	if err != nil {
		v.Hints = []string{HintMalformed}
		return v
	}
	if v.Calculated == onChain {
		v.Verified = true
		return v
	}

	if trimmed := strings.TrimSpace(claimed); trimmed != claimed && digest.Of(trimmed) == onChain {
		v.Hints = append(v.Hints, HintWhitespace)
	}
	if nfc := norm.NFC.String(claimed); nfc != claimed && digest.Of(nfc) == onChain {
		v.Hints = append(v.Hints, HintNFC)
	}
	if nfd := norm.NFD.String(claimed); nfd != claimed && digest.Of(nfd) == onChain {
		v.Hints = append(v.Hints, HintNFD)
	}
	v.Hints = append(v.Hints, HintExact)
	return v
}
