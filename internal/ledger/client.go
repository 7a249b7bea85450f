// Package ledger implements the domain repo interfaces against a dutch-auction
// exchange contract on an Ethereum-compatible chain, using go-ethereum for RPC
// access and ABI encoding. Raw reads live on Repo/EthRepo; the cached
// decorators in cached.go bound the read rate per quantity.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/ethclient"
)

// ClientConfig holds connection parameters for the Ethereum RPC client.
type ClientConfig struct {
	// RPCURL is the JSON-RPC endpoint, http(s) or ws(s).
	RPCURL string

	// ChainID, when non-zero, is verified against the node at connect time.
	ChainID int64
}

// Client wraps an ethclient.Client and provides connectivity helpers.
type Client struct {
	eth *ethclient.Client
}

// New dials the RPC endpoint and optionally verifies the chain ID.
func New(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Client, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("ledger: dial %s: %w", cfg.RPCURL, err)
	}

	if cfg.ChainID != 0 {
		chainID, err := eth.ChainID(ctx)
		if err != nil {
			eth.Close()
			return nil, fmt.Errorf("ledger: chain id: %w", err)
		}
		if chainID.Int64() != cfg.ChainID {
			eth.Close()
			return nil, fmt.Errorf("ledger: connected to chain %d, want %d", chainID.Int64(), cfg.ChainID)
		}
	}

	logger.Info("ledger client connected", slog.String("rpc_url", cfg.RPCURL))
	return &Client{eth: eth}, nil
}

// Close releases the underlying RPC connection.
func (c *Client) Close() {
	c.eth.Close()
}

// Eth returns the raw ethclient for sub-components that need direct access.
func (c *Client) Eth() *ethclient.Client {
	return c.eth
}
