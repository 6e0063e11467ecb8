package api

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gin-gonic/gin"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/coordinator"
	"github.com/lagrangedao/go-bounty-coordinator/internal/ledger"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"github.com/lagrangedao/go-bounty-coordinator/internal/payment"
	"github.com/lagrangedao/go-bounty-coordinator/util"
	"github.com/lagrangedao/go-bounty-coordinator/wallet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

const (
	aliceKey     = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
	aliceAddress = "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23"
)

type account struct {
	key     string
	address string
}

type testServer struct {
	router *gin.Engine
	clk    *clock.Mock
}

type envelope struct {
	Status   string          `json:"status"`
	Code     int             `json:"code"`
	Data     json.RawMessage `json:"data"`
	Message  string          `json:"message"`
	PageInfo *util.PageInfo  `json:"page_info"`
	MixData  json.RawMessage `json:"mix_data"`
}

func newAccount(t *testing.T) account {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return account{
		key:     hexutil.Encode(crypto.FromECDSA(key))[2:],
		address: crypto.PubkeyToAddress(key.PublicKey).Hex(),
	}
}

func newTestServer(t *testing.T) *testServer {
	gin.SetMode(gin.TestMode)
	l, err := ledger.OpenMem(big.NewInt(1))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	clk := clock.NewMock()
	clk.Set(time.Date(2023, 6, 1, 12, 0, 0, 0, time.UTC))
	c := coordinator.New(coordinator.DefaultConfig("0x8ba1f109551bD432803012645Ac136ddd64DBA72"), l, coordinator.WithClock(clk))

	router := gin.New()
	NewServer(c, payment.NewDepositVerifier(nil, "", false), WithClock(clk)).Register(router.Group("/api/v1"))
	return &testServer{router: router, clk: clk}
}

type call struct {
	method      string
	path        string
	body        string
	contentType string
	deposit     string
	as          *account
	timestamp   int64
}

func (s *testServer) do(t *testing.T, cl call) (int, envelope) {
	req := httptest.NewRequest(cl.method, cl.path, bytes.NewBufferString(cl.body))
	if cl.contentType == "" {
		cl.contentType = "application/json"
	}
	req.Header.Set("Content-Type", cl.contentType)
	if cl.deposit != "" {
		req.Header.Set(constants.HEADER_ATTACHED_DEPOSIT, cl.deposit)
	}
	if cl.as != nil {
		ts := cl.timestamp
		if ts == 0 {
			ts = s.clk.Now().Unix()
		}
		timestamp := strconv.FormatInt(ts, 10)
		sig, err := signRequest(cl.as.key, cl.method, cl.path, timestamp, []byte(cl.body))
		require.NoError(t, err)
		req.Header.Set(constants.HEADER_ACCOUNT, cl.as.address)
		req.Header.Set(constants.HEADER_TIMESTAMP, timestamp)
		req.Header.Set(constants.HEADER_SIGNATURE, sig)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func signRequest(key, method, path, timestamp string, body []byte) (string, error) {
	sig, err := wallet.Sign(key, SigningPayload(method, path, timestamp, body))
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sig), nil
}

func (s *testServer) registerNode(t *testing.T, owner *account, name string) *models.Node {
	code, env := s.do(t, call{
		method:  http.MethodPost,
		path:    "/api/v1/nodes",
		body:    `{"name":"` + name + `","absolute_timeout":600000,"allow_network":true,"allow_gpu":true}`,
		deposit: "1 ether",
		as:      owner,
	})
	require.Equal(t, http.StatusOK, code, env.Message)
	var node models.Node
	require.NoError(t, json.Unmarshal(env.Data, &node))
	return &node
}

func TestAuthentication(t *testing.T) {
	s := newTestServer(t)
	alice := account{key: aliceKey, address: aliceAddress}
	bob := newAccount(t)
	body := `{"name":"n0","absolute_timeout":1000}`

	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/nodes", body: body, deposit: "1 ether"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, util.SignatureError, env.Code)

	stale := s.clk.Now().Add(-10 * time.Minute).Unix()
	code, _ = s.do(t, call{method: http.MethodPost, path: "/api/v1/nodes", body: body, deposit: "1 ether", as: &alice, timestamp: stale})
	assert.Equal(t, http.StatusUnauthorized, code)

	impostor := account{key: bob.key, address: aliceAddress}
	code, _ = s.do(t, call{method: http.MethodPost, path: "/api/v1/nodes", body: body, deposit: "1 ether", as: &impostor})
	assert.Equal(t, http.StatusUnauthorized, code)

	// signature over a different body
	timestamp := strconv.FormatInt(s.clk.Now().Unix(), 10)
	sig, err := signRequest(aliceKey, http.MethodPost, "/api/v1/nodes", timestamp, []byte(`{"name":"other"}`))
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/nodes", bytes.NewBufferString(body))
	req.Header.Set(constants.HEADER_ACCOUNT, aliceAddress)
	req.Header.Set(constants.HEADER_TIMESTAMP, timestamp)
	req.Header.Set(constants.HEADER_SIGNATURE, sig)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	node := s.registerNode(t, &alice, "n0")
	assert.Equal(t, "n0.node."+aliceAddress, node.Id)
	assert.Equal(t, aliceAddress, node.OwnerId)
}

func TestNodeEndpoints(t *testing.T) {
	s := newTestServer(t)
	alice := account{key: aliceKey, address: aliceAddress}
	bob := newAccount(t)
	for _, name := range []string{"n0", "n1", "n2"} {
		s.registerNode(t, &alice, name)
	}

	code, env := s.do(t, call{method: http.MethodGet, path: "/api/v1/nodes?page=2&size=2"})
	require.Equal(t, http.StatusOK, code)
	var nodes []*models.Node
	require.NoError(t, json.Unmarshal(env.Data, &nodes))
	assert.Len(t, nodes, 1)
	require.NotNil(t, env.PageInfo)
	assert.Equal(t, "3", env.PageInfo.TotalRecordCount)

	code, _ = s.do(t, call{method: http.MethodGet, path: "/api/v1/nodes?page=0"})
	assert.Equal(t, http.StatusBadRequest, code)

	nodeId := "n1.node." + aliceAddress
	code, env = s.do(t, call{method: http.MethodPut, path: "/api/v1/nodes/" + nodeId + "/offline", body: `{"offline":true}`, as: &bob})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, util.AuthError, env.Code)

	code, _ = s.do(t, call{method: http.MethodPut, path: "/api/v1/nodes/" + nodeId + "/offline", body: `{"offline":true}`, as: &alice})
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, call{method: http.MethodGet, path: "/api/v1/stats"})
	require.Equal(t, http.StatusOK, code)
	var stats coordinator.Stats
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.Equal(t, uint64(2), stats.NodeCount)
	assert.Equal(t, uint64(1), stats.OfflineNodeCount)

	code, env = s.do(t, call{method: http.MethodDelete, path: "/api/v1/nodes/" + nodeId, as: &alice})
	require.Equal(t, http.StatusOK, code)
	var removed models.RemoveNodeResult
	require.NoError(t, json.Unmarshal(env.Data, &removed))
	assert.Equal(t, "1000000000000000000", removed.Refunded)

	code, env = s.do(t, call{method: http.MethodGet, path: "/api/v1/nodes/missing.node.nobody"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, util.NotFoundError, env.Code)
}

const bountyManifest = `version: "1.0"
bounty:
  file:
    location: bafybeigdyrzt5sfp7udm7hu76uh7y26nf3efuylqabf3oclgtqy55fbzdi
    protocol: IPFS
  min_nodes: 1
  timeout_seconds: 60
  deposit:
    storage: 0.1 ether
    reward: 0.1 ether
`

func TestBountyLifecycle(t *testing.T) {
	s := newTestServer(t)
	alice := account{key: aliceKey, address: aliceAddress}
	bob := newAccount(t)
	for _, name := range []string{"n0", "n1", "n2"} {
		s.registerNode(t, &alice, name)
	}

	code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/bounties", body: bountyManifest,
		contentType: "application/x-yaml", deposit: "0.1 ether", as: &bob})
	assert.Equal(t, http.StatusUnprocessableEntity, code, "deposit must match the escrowed amounts")
	assert.Equal(t, util.InsufficientError, env.Code)

	code, env = s.do(t, call{method: http.MethodPost, path: "/api/v1/bounties", body: bountyManifest,
		contentType: "application/x-yaml", deposit: "0.2 ether", as: &bob})
	require.Equal(t, http.StatusOK, code, env.Message)
	var bounty models.Bounty
	require.NoError(t, json.Unmarshal(env.Data, &bounty))
	require.Len(t, bounty.ElectedNodes, 2)
	assert.Equal(t, bob.address, bounty.OwnerId)

	path := "/api/v1/bounties/" + bounty.Id
	nodeId := bounty.ElectedNodes[0]

	code, env = s.do(t, call{method: http.MethodGet, path: path + "/should-post/" + nodeId})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "true", string(env.Data))

	code, _ = s.do(t, call{method: http.MethodPost, path: path + "/answers", as: &bob,
		body: `{"node_id":"` + nodeId + `","solution":"42","status":"SUCCESS"}`})
	assert.Equal(t, http.StatusForbidden, code, "only the node owner answers")

	code, _ = s.do(t, call{method: http.MethodPost, path: path + "/answers", as: &alice,
		body: `{"node_id":"` + nodeId + `","solution":"42","status":"MAYBE"}`})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env = s.do(t, call{method: http.MethodPost, path: path + "/answers", as: &alice,
		body: `{"node_id":"` + nodeId + `","solution":"42","status":"SUCCESS"}`})
	require.Equal(t, http.StatusOK, code, env.Message)

	code, env = s.do(t, call{method: http.MethodGet, path: path})
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, json.Unmarshal(env.Data, &bounty))
	assert.Equal(t, models.BountySuccess, bounty.Status)

	code, env = s.do(t, call{method: http.MethodGet, path: path + "/result"})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"42":1}`, string(env.Data))

	code, env = s.do(t, call{method: http.MethodPost, path: path + "/cancel", as: &bob})
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, util.InvalidStateError, env.Code)

	collect := func(bountyIds string) (success []models.CollectResult, fail map[string]string) {
		code, env := s.do(t, call{method: http.MethodPost, path: "/api/v1/rewards/collect", as: &alice,
			body: `{"node_id":"` + nodeId + `","bounty_ids":[` + bountyIds + `]}`})
		require.Equal(t, http.StatusOK, code)
		var mixed struct {
			Success []models.CollectResult `json:"success"`
			Fail    map[string]string      `json:"fail"`
		}
		require.NoError(t, json.Unmarshal(env.MixData, &mixed))
		return mixed.Success, mixed.Fail
	}

	success, fail := collect(`"` + bounty.Id + `","0-0.bounty.nobody"`)
	require.Len(t, success, 1)
	assert.Equal(t, "100000000000000000", success[0].Amount)
	assert.Contains(t, fail, "0-0.bounty.nobody")

	success, fail = collect(`"` + bounty.Id + `"`)
	assert.Empty(t, success)
	assert.Contains(t, fail, bounty.Id)

	code, env = s.do(t, call{method: http.MethodGet, path: "/api/v1/owners/" + aliceAddress + "/earnings"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "100000000000000000", string(env.Data))
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{xerrors.Errorf("x: %w", coordinator.ErrUnauthorized), http.StatusForbidden, util.AuthError},
		{xerrors.Errorf("x: %w", coordinator.ErrInvalidState), http.StatusConflict, util.InvalidStateError},
		{xerrors.Errorf("x: %w", coordinator.ErrResourceExhausted), http.StatusUnprocessableEntity, util.InsufficientError},
		{xerrors.Errorf("x: %w", coordinator.ErrNotFound), http.StatusNotFound, util.NotFoundError},
		{xerrors.Errorf("x: %w", coordinator.ErrInvariant), http.StatusInternalServerError, util.InvariantViolation},
		{xerrors.Errorf("x: %w", coordinator.ErrInvalidArgument), http.StatusBadRequest, util.InvalidParamError},
		{xerrors.Errorf("x: %w", payment.ErrDepositInvalid), http.StatusBadRequest, util.DepositError},
		{xerrors.New("boom"), http.StatusInternalServerError, util.InternalError},
	}
	for _, tc := range cases {
		status, code := errorCode(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}
