package chain

import (
	"context"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// Client wraps go-ethereum RPC for read-only contract calls.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
}

// NewClient creates a new chain client from the RPC URL.
func NewClient(ctx context.Context, rpcURL string) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}

	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
	}, nil
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// GetChainID returns the chain ID.
func (c *Client) GetChainID(ctx context.Context) (*big.Int, error) {
	return c.ethClient.ChainID(ctx)
}

// CallContract performs an eth_call for a contract method.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, blockNumber)
}

// Set holds one client per configured chain id.
type Set map[string]*Client

// DialAll connects to every RPC endpoint and checks that each reports the chain id it is keyed by.
func DialAll(ctx context.Context, endpoints map[string]string) (Set, error) {
	ids := make([]string, 0, len(endpoints))
	for id := range endpoints {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	set := make(Set, len(endpoints))
	for _, id := range ids {
		client, err := NewClient(ctx, endpoints[id])
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("dial chain %s: %w", id, err)
		}
		set[id] = client

		got, err := client.GetChainID(ctx)
		if err != nil {
			set.Close()
			return nil, fmt.Errorf("chain %s: get chain id: %w", id, err)
		}
		if got.String() != id {
			set.Close()
			return nil, fmt.Errorf("chain %s: rpc reports chain id %s", id, got)
		}
	}
	return set, nil
}

// Close closes every client in the set.
func (s Set) Close() {
	for _, client := range s {
		client.Close()
	}
}
