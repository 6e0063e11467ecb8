package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/api"
	"golang.org/x/xerrors"
)

// Signer is satisfied by wallet.LocalWallet.
type Signer interface {
	WalletSign(ctx context.Context, addr string, msg []byte) (string, error)
}

// Deposit is the funding attached to a call, either a transaction hash
// or, on coordinators that trust declared amounts, an amount.
type Deposit struct {
	TxHash string
	Amount string
}

// Client talks to the coordinator HTTP API on behalf of one account.
type Client struct {
	baseUrl    string
	account    string
	signer     Signer
	httpClient *http.Client
}

func NewClient(baseUrl, account string, signer Signer) *Client {
	return &Client{
		baseUrl:    strings.TrimSuffix(baseUrl, "/") + "/api/v1",
		account:    account,
		signer:     signer,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type response struct {
	Status  string          `json:"status"`
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	MixData json.RawMessage `json:"mix_data"`
}

// APIError is returned when the coordinator answers with a failure envelope.
type APIError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("coordinator returned %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

type request struct {
	method      string
	path        string
	body        []byte
	contentType string
	deposit     *Deposit
	signed      bool
}

func (c *Client) do(ctx context.Context, r request) (*response, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.baseUrl+r.path, body)
	if err != nil {
		return nil, xerrors.Errorf("creating request: %w", err)
	}
	contentType := r.contentType
	if contentType == "" {
		contentType = "application/json"
	}
	req.Header.Set("Content-Type", contentType)
	if r.deposit != nil {
		if r.deposit.TxHash != "" {
			req.Header.Set(constants.HEADER_DEPOSIT_TX, r.deposit.TxHash)
		}
		if r.deposit.Amount != "" {
			req.Header.Set(constants.HEADER_ATTACHED_DEPOSIT, r.deposit.Amount)
		}
	}
	if r.signed {
		if err := c.sign(ctx, req, r.body); err != nil {
			return nil, err
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, xerrors.Errorf("%s %s: %w", r.method, r.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, xerrors.Errorf("reading response: %w", err)
	}
	var out response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, xerrors.Errorf("decoding response of %s %s (status %d): %w", r.method, r.path, resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Code: out.Code, Message: out.Message}
	}
	return &out, nil
}

func (c *Client) sign(ctx context.Context, req *http.Request, body []byte) error {
	if c.signer == nil || c.account == "" {
		return xerrors.New("an account is required to sign requests")
	}
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := c.signer.WalletSign(ctx, c.account, api.SigningPayload(req.Method, req.URL.RequestURI(), timestamp, body))
	if err != nil {
		return xerrors.Errorf("signing request: %w", err)
	}
	req.Header.Set(constants.HEADER_ACCOUNT, c.account)
	req.Header.Set(constants.HEADER_TIMESTAMP, timestamp)
	req.Header.Set(constants.HEADER_SIGNATURE, sig)
	return nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	resp, err := c.do(ctx, request{method: http.MethodGet, path: path})
	if err != nil {
		return err
	}
	return decode(resp.Data, out)
}

func (c *Client) send(ctx context.Context, method, path string, in interface{}, deposit *Deposit, out interface{}) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return err
		}
	}
	resp, err := c.do(ctx, request{method: method, path: path, body: body, deposit: deposit, signed: true})
	if err != nil {
		return err
	}
	return decode(resp.Data, out)
}

func decode(data json.RawMessage, out interface{}) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, out)
}

func escape(id string) string {
	return url.PathEscape(id)
}

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, xerrors.Errorf("malformed amount %q", s)
	}
	return v, nil
}
