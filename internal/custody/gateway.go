package custody

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/url"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"lpgateway/internal/fault"
)

// Wallet is a custodial wallet handle.
type Wallet struct {
	ID        string         `json:"id"`
	Address   common.Address `json:"address"`
	ChainType string         `json:"chain_type"`
	PolicyIDs []string       `json:"policy_ids"`
}

// TxRequest is a transaction the custody signer is asked to broadcast.
type TxRequest struct {
	WalletID string
	ChainID  uint64
	To       common.Address
	Value    *big.Int
	Data     []byte
}

// Gateway is the custody boundary that signs and broadcasts under policy enforcement.
type Gateway interface {
	CreateWallet(ctx context.Context, userID string, policyIDs []string) (Wallet, error)
	SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error)
}

// Client implements Gateway over the custody HTTP API.
type Client struct {
	api    *API
	logger *zap.Logger
}

func NewClient(api *API, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{api: api, logger: logger}
}

type createWalletRequest struct {
	ChainType string   `json:"chain_type"`
	PolicyIDs []string `json:"policy_ids"`
}

// CreateWallet creates an ethereum wallet for userID governed by policyIDs.
// The idempotency key is derived from both, so a repeated create returns the same wallet.
func (c *Client) CreateWallet(ctx context.Context, userID string, policyIDs []string) (Wallet, error) {
	if userID == "" {
		return Wallet{}, fault.Validation("create wallet", "user id is required")
	}
	if len(policyIDs) == 0 {
		return Wallet{}, fault.Validation("create wallet", "at least one policy id is required")
	}
	keyParts := append([]string{"wallet", userID}, policyIDs...)
	var out Wallet
	err := c.api.Do(ctx, http.MethodPost, "/v1/wallets", "create_wallet",
		createWalletRequest{ChainType: "ethereum", PolicyIDs: policyIDs},
		&out,
		map[string]string{"Idempotency-Key": IdempotencyKey(keyParts...)},
	)
	if err != nil {
		return Wallet{}, classify("create wallet", 0, err)
	}
	if out.ID == "" || out.Address == (common.Address{}) {
		return Wallet{}, &fault.Error{Kind: fault.KindTransaction, Op: "create wallet", Msg: "custody returned an incomplete wallet"}
	}
	c.logger.Info("wallet created", zap.String("wallet_id", out.ID), zap.String("address", out.Address.Hex()))
	return out, nil
}

type rpcTransaction struct {
	To      string `json:"to"`
	Value   string `json:"value"`
	Data    string `json:"data"`
	ChainID uint64 `json:"chain_id"`
}

type rpcRequest struct {
	Method    string `json:"method"`
	CAIP2     string `json:"caip2"`
	ChainType string `json:"chain_type"`
	Params    struct {
		Transaction rpcTransaction `json:"transaction"`
	} `json:"params"`
}

type rpcResponse struct {
	Method string `json:"method"`
	Data   struct {
		Hash string `json:"hash"`
	} `json:"data"`
}

// SendTransaction asks the custody signer to broadcast tx and returns its hash.
// A rejection (including a policy denial) is returned as fault.KindTransaction.
func (c *Client) SendTransaction(ctx context.Context, tx TxRequest) (common.Hash, error) {
	if tx.WalletID == "" {
		return common.Hash{}, fault.Validation("send transaction", "wallet id is required")
	}
	value := tx.Value
	if value == nil {
		value = new(big.Int)
	}
	var req rpcRequest
	req.Method = "eth_sendTransaction"
	req.CAIP2 = fmt.Sprintf("eip155:%d", tx.ChainID)
	req.ChainType = "ethereum"
	req.Params.Transaction = rpcTransaction{
		To:      tx.To.Hex(),
		Value:   hexutil.EncodeBig(value),
		Data:    hexutil.Encode(tx.Data),
		ChainID: tx.ChainID,
	}

	var out rpcResponse
	path := "/v1/wallets/" + url.PathEscape(tx.WalletID) + "/rpc"
	if err := c.api.Do(ctx, http.MethodPost, path, "send_transaction", req, &out, nil); err != nil {
		return common.Hash{}, classify("send transaction", tx.ChainID, err)
	}
	raw, err := hexutil.Decode(out.Data.Hash)
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, &fault.Error{Kind: fault.KindTransaction, Op: "send transaction", ChainID: tx.ChainID, Msg: fmt.Sprintf("custody returned invalid hash %q", out.Data.Hash)}
	}
	hash := common.BytesToHash(raw)
	c.logger.Info("transaction sent",
		zap.Uint64("chain_id", tx.ChainID),
		zap.String("wallet_id", tx.WalletID),
		zap.String("to", tx.To.Hex()),
		zap.String("tx_hash", hash.Hex()),
	)
	return hash, nil
}

// classify keeps custody rejections verbatim and marks transport failures transient.
func classify(op string, chainID uint64, err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return fault.Transaction(op, chainID, apiErr)
	}
	return &fault.Error{Kind: fault.KindTransient, Op: op, ChainID: chainID, Err: err}
}
