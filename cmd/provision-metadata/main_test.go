package main

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/metadata-provisioner/pkg/provision"
	"github.com/code-payments/metadata-provisioner/pkg/solana"
	"github.com/code-payments/metadata-provisioner/pkg/solana/token"
	"github.com/code-payments/metadata-provisioner/pkg/solana/tokenmetadata"
	"github.com/code-payments/metadata-provisioner/pkg/testutil"
)

const sampleMint = "GLCkK1D5aKAaeeQSLRXHLzdWrrkmad2rJXBD3A5mWTis"

func run(t *testing.T, args ...string) (string, error) {
	var out bytes.Buffer
	a := newApp()
	a.Writer = &out
	a.ErrWriter = &out

	err := a.Run(append([]string{"provision-metadata", "--config", filepath.Join(t.TempDir(), "none.yaml")}, args...))
	return out.String(), err
}

func TestDerive(t *testing.T) {
	out, err := run(t, "derive", "--mint", sampleMint)
	require.NoError(t, err)
	assert.Contains(t, out, "Metadata PDA: 6u18j6P2BQaLVKqEMbMHycyU2JER7dA4WfcS8jxhkJmA (bump 253)")
	assert.Contains(t, out, "Master Edition PDA: Bk6tPxCpiqntjAGQVzJgtAxQCvRdxTCfNNCBCH55TaL4")

	_, err = run(t, "derive", "--mint", "bogus")
	assert.True(t, errors.Is(err, provision.ErrConfiguration))
}

func TestPlan(t *testing.T) {
	key := testutil.GenerateSolanaKeypair(t)
	keypairPath := filepath.Join(t.TempDir(), "id.json")
	require.NoError(t, os.WriteFile(keypairPath, testutil.SolanaKeypairJSON(t, key), 0600))

	t.Setenv("SECRET_KEY", "")
	t.Setenv("KEYPAIR_PATH", keypairPath)
	t.Setenv("ASSET_MINT", sampleMint)
	t.Setenv("ASSET_NAME", "Solana Training Token")
	t.Setenv("ASSET_SYMBOL", "TRAIN_KHAL")
	t.Setenv("ASSET_URI", "https://arweave.net/1234")

	out, err := run(t, "plan")
	require.NoError(t, err)
	assert.Contains(t, out, "Metadata PDA: 6u18j6P2BQaLVKqEMbMHycyU2JER7dA4WfcS8jxhkJmA")
	assert.Contains(t, out, "Payer: "+base58.Encode(key[32:]))

	t.Setenv("ASSET_SYMBOL", "TOO_LONG_SYMBOL")
	_, err = run(t, "plan", "--payer", base58.Encode(key[32:]))
	require.Error(t, err)
	assert.Equal(t, "provisioning failed during configure", describe(err))
}

// devnetStub answers the RPC calls a single provisioning run makes, and
// records every transaction it accepts.
type devnetStub struct {
	t *testing.T

	mu        sync.Mutex
	submitted []solana.Transaction
}

func (s *devnetStub) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int               `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	require.NoError(s.t, json.NewDecoder(r.Body).Decode(&req))

	rpcContext := map[string]interface{}{"slot": 100}

	var result interface{}
	switch req.Method {
	case "getAccountInfo":
		var address string
		require.NoError(s.t, json.Unmarshal(req.Params[0], &address))
		assert.Equal(s.t, sampleMint, address)

		result = map[string]interface{}{
			"context": rpcContext,
			"value": map[string]interface{}{
				"lamports":   1461600,
				"owner":      base58.Encode(token.ProgramKey),
				"data":       []string{base64.StdEncoding.EncodeToString((&token.Mint{Supply: 1, IsInitialized: true}).Marshal()), "base64"},
				"executable": false,
			},
		}
	case "getLatestBlockhash":
		blockhash := solana.Blockhash{9, 9, 9}
		result = map[string]interface{}{
			"context": rpcContext,
			"value": map[string]interface{}{
				"blockhash":            base58.Encode(blockhash[:]),
				"lastValidBlockHeight": 1000,
			},
		}
	case "sendTransaction":
		var encoded string
		require.NoError(s.t, json.Unmarshal(req.Params[0], &encoded))
		raw, err := base64.StdEncoding.DecodeString(encoded)
		require.NoError(s.t, err)

		var tx solana.Transaction
		require.NoError(s.t, tx.Unmarshal(raw))
		require.NoError(s.t, tx.Verify())

		s.mu.Lock()
		s.submitted = append(s.submitted, tx)
		s.mu.Unlock()

		result = base58.Encode(tx.Signature())
	case "getSignatureStatuses":
		result = map[string]interface{}{
			"context": rpcContext,
			"value": []interface{}{
				map[string]interface{}{"slot": 101, "confirmations": 1, "confirmationStatus": "confirmed", "err": nil},
			},
		}
	default:
		s.t.Errorf("unexpected method %s", req.Method)
	}

	w.Header().Set("Content-Type", "application/json")
	require.NoError(s.t, json.NewEncoder(w).Encode(map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  result,
	}))
}

func TestProvision_Confirmed(t *testing.T) {
	stub := &devnetStub{t: t}
	ts := httptest.NewServer(http.HandlerFunc(stub.serve))
	defer ts.Close()

	key := testutil.GenerateSolanaKeypair(t)

	t.Setenv("SECRET_KEY", string(testutil.SolanaKeypairJSON(t, key)))
	t.Setenv("NEW_RELIC_LICENSE_KEY", "")
	t.Setenv("ASSET_MINT", sampleMint)
	t.Setenv("ASSET_NAME", "Solana Training Token")
	t.Setenv("ASSET_SYMBOL", "TRAIN_KHAL")
	t.Setenv("ASSET_URI", "https://arweave.net/1234")

	out, err := run(t, "--endpoint", ts.URL, "provision")
	require.NoError(t, err)
	assert.Equal(t, "Metadata PDA: 6u18j6P2BQaLVKqEMbMHycyU2JER7dA4WfcS8jxhkJmA\n", out)

	stub.mu.Lock()
	defer stub.mu.Unlock()
	require.Len(t, stub.submitted, 1)

	tx := stub.submitted[0]
	assert.EqualValues(t, key[32:], tx.Message.Accounts[0])
	require.Len(t, tx.Message.Instructions, 1)
	assert.EqualValues(t, tokenmetadata.ProgramKey, tx.Message.Accounts[tx.Message.Instructions[0].ProgramIndex])
}

func TestProvision_MissingKeypair(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	t.Setenv("KEYPAIR_PATH", filepath.Join(t.TempDir(), "missing.json"))
	t.Setenv("ASSET_MINT", sampleMint)

	_, err := run(t, "provision")
	require.Error(t, err)
	assert.True(t, errors.Is(err, provision.ErrConfiguration))
	assert.Equal(t, "provisioning failed during configure", describe(err))
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "provisioning failed", describe(errors.New("unknown")))
	assert.Equal(t, "provisioning failed during submit", describe(&provision.StageError{Stage: provision.StageSubmit}))
}
