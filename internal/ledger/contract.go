package ledger

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// exchangeABI covers the read surface of the dutch-auction exchange contract.
const exchangeABI = `[
	{"constant":true,"inputs":[{"name":"sellToken","type":"address"},{"name":"buyToken","type":"address"}],"name":"sellVolumesCurrent","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"sellToken","type":"address"},{"name":"buyToken","type":"address"}],"name":"buyVolumes","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"sellToken","type":"address"},{"name":"buyToken","type":"address"},{"name":"auctionIndex","type":"uint256"}],"name":"getCurrentAuctionPrice","outputs":[{"name":"num","type":"uint256"},{"name":"den","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"sellToken","type":"address"},{"name":"buyToken","type":"address"},{"name":"auctionIndex","type":"uint256"}],"name":"closingPrices","outputs":[{"name":"num","type":"uint256"},{"name":"den","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"sellToken","type":"address"},{"name":"buyToken","type":"address"}],"name":"getAuctionStart","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"sellToken","type":"address"},{"name":"buyToken","type":"address"}],"name":"getAuctionIndex","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[{"name":"user","type":"address"}],"name":"getFeeRatio","outputs":[{"name":"num","type":"uint256"},{"name":"den","type":"uint256"}],"stateMutability":"view","type":"function"}
]`

// erc20ABI covers the token metadata reads.
const erc20ABI = `[
	{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"constant":true,"inputs":[],"name":"symbol","outputs":[{"name":"","type":"string"}],"stateMutability":"view","type":"function"}
]`

// contract is a minimal read-only binding around one deployed contract.
type contract struct {
	abi  abi.ABI
	addr common.Address
	eth  *ethclient.Client
}

func newContract(rawABI string, addr common.Address, eth *ethclient.Client) (*contract, error) {
	parsed, err := abi.JSON(strings.NewReader(rawABI))
	if err != nil {
		return nil, fmt.Errorf("ledger: parse abi: %w", err)
	}
	return &contract{abi: parsed, addr: addr, eth: eth}, nil
}

// call performs an eth_call against the latest block and unpacks the outputs
// into results.
func (c *contract) call(ctx context.Context, method string, results []any, args ...any) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("ledger: pack %s: %w", method, err)
	}

	out, err := c.eth.CallContract(ctx, ethereum.CallMsg{To: &c.addr, Data: data}, nil)
	if err != nil {
		return fmt.Errorf("ledger: call %s: %w", method, err)
	}

	vals, err := c.abi.Unpack(method, out)
	if err != nil {
		return fmt.Errorf("ledger: unpack %s: %w", method, err)
	}
	if len(vals) != len(results) {
		return fmt.Errorf("ledger: %s returned %d values, want %d", method, len(vals), len(results))
	}
	for i, v := range vals {
		switch dst := results[i].(type) {
		case **big.Int:
			n, ok := v.(*big.Int)
			if !ok {
				return fmt.Errorf("ledger: %s output %d is %T, want *big.Int", method, i, v)
			}
			*dst = n
		case *uint8:
			n, ok := v.(uint8)
			if !ok {
				return fmt.Errorf("ledger: %s output %d is %T, want uint8", method, i, v)
			}
			*dst = n
		case *string:
			s, ok := v.(string)
			if !ok {
				return fmt.Errorf("ledger: %s output %d is %T, want string", method, i, v)
			}
			*dst = s
		default:
			return fmt.Errorf("ledger: %s output %d: unsupported destination %T", method, i, dst)
		}
	}
	return nil
}
