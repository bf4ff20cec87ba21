// Package starknet reads Starknet state over JSON-RPC: transaction receipts for payment
// validation, class hashes and ERC-20 balances for account deployment gating.
package starknet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/segmentio/encoding/json"
)

// JSON-RPC error codes of the Starknet spec.
const (
	codeContractNotFound = 20
	codeTxHashNotFound   = 29
)

// BalanceOfSelector is sn_keccak("balanceOf").
const BalanceOfSelector = "0x2e4263afad30923c891518314c3c95dbe830a16874e8abc5777a9a20b54c76e"

// TransferSelector is sn_keccak("Transfer").
const TransferSelector = "0x99cd8bde557814842a3121e8ddfd433a539b8c9f14bf31ebf108d12e6196e9"

var (
	ErrContractNotFound = errors.New("contract not found")
	ErrTxNotFound       = errors.New("transaction hash not found")
)

type Event struct {
	FromAddress string   `json:"from_address"`
	Keys        []string `json:"keys"`
	Data        []string `json:"data"`
}

type Receipt struct {
	Type            string  `json:"type"`
	TransactionHash string  `json:"transaction_hash"`
	FinalityStatus  string  `json:"finality_status"`
	ExecutionStatus string  `json:"execution_status"`
	RevertReason    string  `json:"revert_reason"`
	Events          []Event `json:"events"`
}

// Client is a thin Starknet JSON-RPC reader on top of the go-ethereum rpc transport.
type Client struct {
	c *rpc.Client
}

func Dial(ctx context.Context, url string) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial starknet %s: %w", url, err)
	}
	return &Client{c: c}, nil
}

func (c *Client) Close() { c.c.Close() }

func (c *Client) TransactionReceipt(ctx context.Context, hash string) (*Receipt, error) {
	var raw json.RawMessage
	if err := c.c.CallContext(ctx, &raw, "starknet_getTransactionReceipt", hash); err != nil {
		return nil, mapErr(err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrTxNotFound
	}
	var r Receipt
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("decode receipt: %w", err)
	}
	return &r, nil
}

// ClassHashAt returns the class hash deployed at address, ErrContractNotFound when the
// address holds no contract yet.
func (c *Client) ClassHashAt(ctx context.Context, address string) (string, error) {
	var hash string
	if err := c.c.CallContext(ctx, &hash, "starknet_getClassHashAt", "latest", address); err != nil {
		return "", mapErr(err)
	}
	return hash, nil
}

type functionCall struct {
	ContractAddress    string   `json:"contract_address"`
	EntryPointSelector string   `json:"entry_point_selector"`
	Calldata           []string `json:"calldata"`
}

// BalanceOf calls token.balanceOf(owner) and returns the raw u256.
func (c *Client) BalanceOf(ctx context.Context, token, owner string) (*big.Int, error) {
	var out []string
	call := functionCall{ContractAddress: token, EntryPointSelector: BalanceOfSelector, Calldata: []string{owner}}
	if err := c.c.CallContext(ctx, &out, "starknet_call", call, "latest"); err != nil {
		return nil, mapErr(err)
	}
	switch len(out) {
	case 1:
		return ParseFelt(out[0])
	case 2:
		return U256(out[0], out[1])
	default:
		return nil, fmt.Errorf("balanceOf: unexpected result length %d", len(out))
	}
}

func mapErr(err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeContractNotFound:
			return fmt.Errorf("%w: %v", ErrContractNotFound, err)
		case codeTxHashNotFound:
			return fmt.Errorf("%w: %v", ErrTxNotFound, err)
		}
	}
	return err
}

// ParseFelt parses a 0x-prefixed field element.
func ParseFelt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	v, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(s), "0x"), 16)
	if !ok {
		return nil, fmt.Errorf("invalid felt %q", s)
	}
	return v, nil
}

// U256 joins a Cairo u256 (low, high) pair.
func U256(low, high string) (*big.Int, error) {
	lo, err := ParseFelt(low)
	if err != nil {
		return nil, err
	}
	hi, err := ParseFelt(high)
	if err != nil {
		return nil, err
	}
	return hi.Lsh(hi, 128).Add(hi, lo), nil
}

// NormalizeAddress strips 0x and zero padding so padded and compact forms compare equal.
func NormalizeAddress(a string) string {
	a = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(a)), "0x")
	a = strings.TrimLeft(a, "0")
	if a == "" {
		return "0"
	}
	return a
}
