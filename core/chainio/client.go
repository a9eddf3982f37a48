// Package chainio binds the console to a development node over JSON-RPC.
package chainio

import (
	"context"
	"fmt"
	"math/big"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/AvaProtocol/eip4337-console/pkg/logger"
)

// Backend is the chain surface the registries, builder and bundler use.
// *Client satisfies it; tests substitute an in-memory chain.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
}

// Node adds the development node methods that are not part of the standard
// ethclient surface.
type Node interface {
	Backend
	BlockNumber(ctx context.Context) (uint64, error)
	Syncing(ctx context.Context) (bool, error)
	Accounts(ctx context.Context) ([]common.Address, error)
	SendNodeTransaction(ctx context.Context, from, to common.Address, value *big.Int) (common.Hash, error)
	SetBalance(ctx context.Context, account common.Address, wei *big.Int) error
}

// Client is an ethclient plus the raw rpc handle for node specific calls.
type Client struct {
	*ethclient.Client

	rpc    *rpc.Client
	url    string
	logger logger.Logger
}

func NewClient(ctx context.Context, url string, lgr logger.Logger) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", ErrNodeUnreachable, err)
	}

	return &Client{
		Client: ethclient.NewClient(rpcClient),
		rpc:    rpcClient,
		url:    url,
		logger: logger.EnsureLogger(lgr),
	}, nil
}

func (c *Client) URL() string {
	return c.url
}

// Syncing reports whether the node is still catching up.
func (c *Client) Syncing(ctx context.Context) (bool, error) {
	progress, err := c.SyncProgress(ctx)
	if err != nil {
		return false, err
	}
	return progress != nil, nil
}

// Accounts returns the node managed accounts (eth_accounts).
func (c *Client) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := c.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return accounts, nil
}

// SendNodeTransaction asks the node to sign and send a plain transfer from one
// of its own accounts (eth_sendTransaction).
func (c *Client) SendNodeTransaction(ctx context.Context, from, to common.Address, value *big.Int) (common.Hash, error) {
	var hash common.Hash
	req := map[string]interface{}{
		"from":  from,
		"to":    to,
		"value": (*hexutil.Big)(value),
	}
	if err := c.rpc.CallContext(ctx, &hash, "eth_sendTransaction", req); err != nil {
		return common.Hash{}, err
	}

	c.logger.Debug("node transaction sent", "from", from.Hex(), "to", to.Hex(), "value", value.String(), "tx", hash.Hex())
	return hash, nil
}

// SetBalance overwrites an account balance. Only anvil style dev nodes
// implement anvil_setBalance.
func (c *Client) SetBalance(ctx context.Context, account common.Address, wei *big.Int) error {
	if err := c.rpc.CallContext(ctx, nil, "anvil_setBalance", account, hexutil.EncodeBig(wei)); err != nil {
		return fmt.Errorf("anvil_setBalance: %w", err)
	}
	return nil
}
