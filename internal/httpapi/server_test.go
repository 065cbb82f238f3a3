package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/aidecisionlog/server/internal/chain"
	"github.com/aidecisionlog/server/internal/chain/chaintest"
	"github.com/aidecisionlog/server/internal/decisionlog/digest"
	"github.com/aidecisionlog/server/internal/decisionlog/service"
	"github.com/aidecisionlog/server/internal/decisionlog/store"
	"github.com/aidecisionlog/server/internal/decisionlog/store/memory"
	"github.com/aidecisionlog/server/internal/decisionlog/types"
	"github.com/aidecisionlog/server/internal/httpapi"
)

type testOpts struct {
	limiter        *rate.Limiter
	receiptTimeout time.Duration
}

// newTestServer wires the full dependency graph over a stub ledger and an
// in-memory journal, and returns an httptest.Server plus the stub.
func newTestServer(t *testing.T, opts testOpts) (*httptest.Server, *chaintest.Stub) {
	t.Helper()

	h, stub := newTestHandler(t, opts)
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return ts, stub
}

// newTestHandler is newTestServer without the listener, for tests that need
// control over the request context.
func newTestHandler(t *testing.T, opts testOpts) (http.Handler, *chaintest.Stub) {
	t.Helper()

	logger := log.New(io.Discard, "", 0)

	contract, err := chain.LoadContract("0x5FbDB2315678afecb367f032d93F642f64180aa3", "")
	require.NoError(t, err)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer, err := chain.NewKeySignerFromKey(key, big.NewInt(31337), "")
	require.NoError(t, err)

	stub := chaintest.NewStub()
	stub.Contract = contract

	timeout := opts.receiptTimeout
	if timeout == 0 {
		timeout = 2 * time.Second
	}
	submitter := service.NewSubmitter(stub, contract, signer, service.SubmitterConfig{
		ReceiptTimeout: timeout,
		PollInterval:   time.Millisecond,
	}, logger)
	serial := service.NewSerialSubmitter(submitter, 4)
	t.Cleanup(serial.Close)

	decisions := service.NewDecisionService(serial, service.NewReader(stub, contract, logger), memory.NewJournalStore(), logger)

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:          logger,
		Addr:            ":0",
		DecisionService: decisions,
		HealthService:   service.NewHealthService(stub, time.Second),
		SubmitLimiter:   opts.limiter,
	})

	return srv.Handler(), stub
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// ── POST /log ────────────────────────────────────────────────────────────────

func TestLog_Success(t *testing.T) {
	ts, stub := newTestServer(t, testOpts{})

	resp := postJSON(t, ts.URL+"/log", `{"agent_id":"agent-7","action":"open_valve","reason":"river level high"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeBody[types.LogResponse](t, resp)
	assert.Equal(t, "success", out.Status)
	assert.Equal(t, "Decision logged successfully.", out.Message)
	assert.Equal(t, stub.Sent()[0].Hash().Hex(), out.TxHash)
	assert.Equal(t, digest.Of("river level high"), out.ReasonHash)
	assert.Equal(t, "agent-7", out.LoggedData.AgentID)
	assert.NotEmpty(t, out.LoggedData.Timestamp)
}

func TestLog_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"missing reason", `{"agent_id":"a","action":"b"}`, http.StatusBadRequest, "invalid_decision"},
		{"empty agent", `{"agent_id":"  ","action":"b","reason":"c"}`, http.StatusBadRequest, "invalid_decision"},
		{"wrong type", `{"agent_id":1,"action":"b","reason":"c"}`, http.StatusBadRequest, "invalid_decision"},
		{"unknown field", `{"agent_id":"a","action":"b","reason":"c","extra":true}`, http.StatusBadRequest, "invalid_decision"},
		{"not json", `{agent_id:`, http.StatusBadRequest, "bad_json"},
		{"trailing data", `{"agent_id":"a","action":"b","reason":"c"} {}`, http.StatusBadRequest, "bad_json"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts, stub := newTestServer(t, testOpts{})

			resp := postJSON(t, ts.URL+"/log", tc.body)
			assert.Equal(t, tc.status, resp.StatusCode)
			out := decodeBody[types.ErrorResponse](t, resp)
			assert.Equal(t, "error", out.Status)
			assert.Equal(t, tc.code, out.Error)
			assert.Empty(t, stub.Sent())
			assert.Zero(t, stub.NonceCalls())
		})
	}
}

func TestLog_BroadcastFailure(t *testing.T) {
	ts, stub := newTestServer(t, testOpts{})
	stub.SendErr = errors.New("insufficient funds")

	resp := postJSON(t, ts.URL+"/log", `{"agent_id":"a","action":"b","reason":"c"}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	out := decodeBody[types.ErrorResponse](t, resp)
	assert.Equal(t, "submission_failed", out.Error)
	assert.Contains(t, out.Message, "insufficient funds")
}

func TestLog_ReceiptTimeout(t *testing.T) {
	ts, stub := newTestServer(t, testOpts{receiptTimeout: 20 * time.Millisecond})
	stub.Unmined = true

	resp := postJSON(t, ts.URL+"/log", `{"agent_id":"a","action":"b","reason":"c"}`)
	assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	out := decodeBody[types.ErrorResponse](t, resp)
	assert.Equal(t, "submission_timeout", out.Error)
	assert.Contains(t, out.Message, stub.Sent()[0].Hash().Hex())
}

func TestLog_RequestDeadlineAfterBroadcast(t *testing.T) {
	h, stub := newTestHandler(t, testOpts{receiptTimeout: time.Minute})
	stub.Unmined = true

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodPost, "/log", strings.NewReader(`{"agent_id":"a","action":"b","reason":"c"}`)).WithContext(ctx)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusGatewayTimeout, rec.Code)
	var out types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "submission_timeout", out.Error)
	require.Len(t, stub.Sent(), 1)
	txHash := stub.Sent()[0].Hash().Hex()
	assert.Contains(t, out.Message, txHash)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/submissions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var subs struct {
		Submissions []store.SubmissionRecord `json:"submissions"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &subs))
	require.Len(t, subs.Submissions, 1)
	assert.Equal(t, store.StatusFailed, subs.Submissions[0].Status)
	assert.Equal(t, string(service.StageReceipt), subs.Submissions[0].FailedStage)
	assert.Equal(t, txHash, subs.Submissions[0].TxHash)
}

func TestLog_Protobuf(t *testing.T) {
	ts, _ := newTestServer(t, testOpts{})

	in, err := structpb.NewStruct(map[string]any{
		"agent_id": "agent-7",
		"action":   "open_valve",
		"reason":   "river level high",
	})
	require.NoError(t, err)
	body, err := proto.Marshal(in)
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/log", "application/x-protobuf", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/x-protobuf", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out structpb.Struct
	require.NoError(t, proto.Unmarshal(raw, &out))

	fields := out.GetFields()
	assert.Equal(t, "success", fields["status"].GetStringValue())
	assert.Equal(t, digest.Of("river level high").Hex(), fields["reason_hash"].GetStringValue())
	assert.Equal(t, "agent-7", fields["logged_data"].GetStructValue().GetFields()["agent_id"].GetStringValue())
}

func TestLog_ProtobufGarbage(t *testing.T) {
	ts, _ := newTestServer(t, testOpts{})

	resp, err := http.Post(ts.URL+"/log", "application/x-protobuf", bytes.NewReader([]byte{0xff, 0xff, 0xff}))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLog_OversizedBody(t *testing.T) {
	huge := strings.Repeat("x", 70<<10)

	jsonBody := []byte(`{"agent_id":"a","action":"b","reason":"` + huge + `"}`)
	st, err := structpb.NewStruct(map[string]any{
		"agent_id":  "a",
		"action":    "b",
		"reason":    huge,
		"timestamp": "2025-10-16T07:33:20Z",
	})
	require.NoError(t, err)
	protoBody, err := proto.Marshal(st)
	require.NoError(t, err)

	cases := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{"json", "application/json", jsonBody},
		{"protobuf", "application/x-protobuf", protoBody},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h, stub := newTestHandler(t, testOpts{})

			req := httptest.NewRequest(http.MethodPost, "/log", bytes.NewReader(tc.body))
			req.Header.Set("Content-Type", tc.contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
			assert.Empty(t, stub.Sent())
			assert.Zero(t, stub.NonceCalls())
		})
	}
}

func TestVerify_OversizedBody(t *testing.T) {
	h, _ := newTestHandler(t, testOpts{})

	body := `{"reason":"` + strings.Repeat("x", 70<<10) + `","reason_hash":"0x00"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(body)))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	var out types.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "body_too_large", out.Error)
}

func TestLog_RateLimited(t *testing.T) {
	ts, stub := newTestServer(t, testOpts{limiter: rate.NewLimiter(rate.Every(time.Hour), 1)})

	first := postJSON(t, ts.URL+"/log", `{"agent_id":"a","action":"b","reason":"c"}`)
	assert.Equal(t, http.StatusOK, first.StatusCode)

	second := postJSON(t, ts.URL+"/log", `{"agent_id":"a","action":"b","reason":"c"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "rate_limited", decodeBody[types.ErrorResponse](t, second).Error)
	assert.Len(t, stub.Sent(), 1)
}

func TestLog_WrongMethod(t *testing.T) {
	ts, _ := newTestServer(t, testOpts{})

	resp, err := http.Get(ts.URL + "/log")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

// ── GET /health ──────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	ts, stub := newTestServer(t, testOpts{})
	stub.Head = 77

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[types.HealthResponse](t, resp)
	assert.Equal(t, "ok", out.Status)
	assert.True(t, out.LedgerConnected)
	require.NotNil(t, out.BlockNumber)
	assert.Equal(t, uint64(77), *out.BlockNumber)
}

func TestHealth_LedgerDown(t *testing.T) {
	ts, stub := newTestServer(t, testOpts{})
	stub.BlockErr = errors.New("connection refused")

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	out := decodeBody[types.HealthResponse](t, resp)
	assert.False(t, out.LedgerConnected)
	assert.Nil(t, out.BlockNumber)
}

// ── GET /decisions, POST /verify, GET /submissions ───────────────────────────

func TestDecisionsAndVerify(t *testing.T) {
	ts, _ := newTestServer(t, testOpts{})

	for _, reason := range []string{"alpha", "beta"} {
		resp := postJSON(t, ts.URL+"/log", `{"agent_id":"a","action":"b","reason":"`+reason+`"}`)
		require.Equal(t, http.StatusOK, resp.StatusCode)
	}

	resp, err := http.Get(ts.URL + "/decisions?from_block=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	entries := decodeBody[types.EntriesResponse](t, resp)
	require.Len(t, entries.Entries, 2)
	assert.Empty(t, entries.RetrievalError)
	assert.Equal(t, digest.Of("alpha"), entries.Entries[0].ReasonDigest)
	assert.Less(t, entries.Entries[0].BlockNumber, entries.Entries[1].BlockNumber)

	onChain := entries.Entries[0].ReasonDigest.Hex()

	ok := postJSON(t, ts.URL+"/verify", `{"reason":"alpha","reason_hash":"`+onChain+`"}`)
	require.Equal(t, http.StatusOK, ok.StatusCode)
	assert.True(t, decodeBody[types.VerifyResponse](t, ok).Verified)

	bad := postJSON(t, ts.URL+"/verify", `{"reason":"Alpha","reason_hash":"`+strings.ToUpper(onChain[2:])+`"}`)
	require.Equal(t, http.StatusOK, bad.StatusCode)
	vr := decodeBody[types.VerifyResponse](t, bad)
	assert.False(t, vr.Verified)
	assert.NotEmpty(t, vr.Hints)

	subs, err := http.Get(ts.URL + "/submissions?limit=1")
	require.NoError(t, err)
	defer subs.Body.Close()
	require.Equal(t, http.StatusOK, subs.StatusCode)
	var list struct {
		Submissions []map[string]any `json:"submissions"`
	}
	require.NoError(t, json.NewDecoder(subs.Body).Decode(&list))
	require.Len(t, list.Submissions, 1)
	assert.Equal(t, digest.Of("beta").Hex(), list.Submissions[0]["reason_hash"])
	assert.Equal(t, "confirmed", list.Submissions[0]["status"])
}

func TestDecisions_BlockRange(t *testing.T) {
	ts, _ := newTestServer(t, testOpts{})
	for i := 0; i < 3; i++ {
		postJSON(t, ts.URL+"/log", `{"agent_id":"a","action":"b","reason":"c"}`)
	}

	resp, err := http.Get(ts.URL + "/decisions?from_block=2&to_block=2")
	require.NoError(t, err)
	defer resp.Body.Close()
	out := decodeBody[types.EntriesResponse](t, resp)
	require.Len(t, out.Entries, 1)
	assert.Equal(t, uint64(2), out.Entries[0].BlockNumber)
}

func TestDecisions_SoftFailure(t *testing.T) {
	ts, stub := newTestServer(t, testOpts{})
	stub.FilterErr = errors.New("upstream timeout")

	resp, err := http.Get(ts.URL + "/decisions")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"entries":[]`)
	assert.Contains(t, string(raw), "upstream timeout")
}

func TestDecisions_BadQuery(t *testing.T) {
	ts, _ := newTestServer(t, testOpts{})

	resp, err := http.Get(ts.URL + "/decisions?from_block=-1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestVerify_BadBody(t *testing.T) {
	ts, _ := newTestServer(t, testOpts{})

	assert.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/verify", `nope`).StatusCode)
	assert.Equal(t, http.StatusBadRequest, postJSON(t, ts.URL+"/verify", `{"reason":"x"}`).StatusCode)
}
