package service_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aidecisionlog/server/internal/decisionlog/digest"
	"github.com/aidecisionlog/server/internal/decisionlog/service"
)

func TestVerify(t *testing.T) {
	onChain := digest.Of("alpha").Hex()
	bare := strings.TrimPrefix(onChain, "0x")

	cases := []struct {
		name    string
		claimed string
		hex     string
		want    bool
	}{
		{"exact", "alpha", onChain, true},
		{"no prefix", "alpha", bare, true},
		{"upper case hex", "alpha", "0x" + strings.ToUpper(bare), true},
		{"upper prefix", "alpha", "0X" + bare, true},
		{"case differs", "Alpha", onChain, false},
		{"trailing space", "alpha ", onChain, false},
		{"malformed hex", "alpha", "0x1234", false},
		{"empty hex", "alpha", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, service.Verify(tc.claimed, tc.hex))
		})
	}
}

func TestExplain_Hints(t *testing.T) {
	t.Run("match has no hints", func(t *testing.T) {
		v := service.Explain("alpha", digest.Of("alpha").Hex())
		assert.True(t, v.Verified)
		assert.Empty(t, v.Hints)
	})

	t.Run("malformed", func(t *testing.T) {
		v := service.Explain("alpha", "zz")
		assert.False(t, v.Verified)
		assert.Equal(t, []string{service.HintMalformed}, v.Hints)
		assert.Equal(t, digest.Of("alpha"), v.Calculated)
	})

	t.Run("whitespace", func(t *testing.T) {
		v := service.Explain("  alpha\n", digest.Of("alpha").Hex())
		assert.False(t, v.Verified)
		assert.Equal(t, []string{service.HintWhitespace, service.HintExact}, v.Hints)
	})

	t.Run("logged composed, claimed decomposed", func(t *testing.T) {
		v := service.Explain("cafe\u0301", digest.Of("caf\u00e9").Hex())
		assert.False(t, v.Verified)
		assert.Equal(t, []string{service.HintNFC, service.HintExact}, v.Hints)
	})

	t.Run("logged decomposed, claimed composed", func(t *testing.T) {
		v := service.Explain("caf\u00e9", digest.Of("cafe\u0301").Hex())
		assert.Equal(t, []string{service.HintNFD, service.HintExact}, v.Hints)
	})

	t.Run("unrelated text", func(t *testing.T) {
		v := service.Explain("beta", digest.Of("alpha").Hex())
		assert.Equal(t, []string{service.HintExact}, v.Hints)
		assert.Equal(t, digest.Of("alpha").Hex(), v.OnChain)
	})
}
