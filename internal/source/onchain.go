package source

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swapScope/internal/metrics"
	"swapScope/internal/model"
	"swapScope/internal/retry"
)

// ContractCaller performs read-only contract calls. *chain.Client satisfies it.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// OnchainMetadata resolves symbols through a configured address book and reads
// ERC20 metadata directly from each chain.
type OnchainMetadata struct {
	callers      map[string]ContractCaller
	addresses    map[string]map[string]common.Address
	nativeSymbol map[string]string
	logger       *zap.Logger
}

// NewOnchainMetadata builds a metadata source. addresses maps chain id to symbol to
// contract address; nativeSymbols maps chain id to the symbol of its native asset.
func NewOnchainMetadata(
	callers map[string]ContractCaller,
	addresses map[string]map[string]string,
	nativeSymbols map[string]string,
	logger *zap.Logger,
) (*OnchainMetadata, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	book := make(map[string]map[string]common.Address, len(addresses))
	for chainID, symbols := range addresses {
		book[chainID] = make(map[string]common.Address, len(symbols))
		for symbol, addr := range symbols {
			if !common.IsHexAddress(addr) {
				return nil, fmt.Errorf("chain %s symbol %s: invalid address: %s", chainID, symbol, addr)
			}
			book[chainID][strings.ToUpper(symbol)] = common.HexToAddress(addr)
		}
	}

	natives := make(map[string]string, len(nativeSymbols))
	for chainID, symbol := range nativeSymbols {
		natives[chainID] = strings.ToUpper(symbol)
	}

	return &OnchainMetadata{
		callers:      callers,
		addresses:    book,
		nativeSymbol: natives,
		logger:       logger,
	}, nil
}

// ERC20Metadata resolves the symbol to a contract and reads decimals, symbol and name.
func (s *OnchainMetadata) ERC20Metadata(ctx context.Context, chainID, symbol string) (model.TokenMeta, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if chainID == "" || symbol == "" {
		return model.TokenMeta{}, retry.Permanent(fmt.Errorf("missing chain id or symbol"))
	}

	token, ok := s.addresses[chainID][symbol]
	if !ok {
		if s.nativeSymbol[chainID] == symbol {
			metrics.SourceRequest("onchain", "native")
			return model.TokenMeta{
				ChainID:  chainID,
				Decimals: model.IntPtr(18),
				Symbol:   symbol,
				Name:     symbol,
			}, nil
		}
		return model.TokenMeta{}, retry.Permanent(fmt.Errorf("no address configured for %s on chain %s", symbol, chainID))
	}

	caller, ok := s.callers[chainID]
	if !ok || caller == nil {
		return model.TokenMeta{}, retry.Permanent(fmt.Errorf("no rpc configured for chain %s", chainID))
	}

	meta, err := FetchTokenMeta(ctx, caller, token, s.logger)
	if err != nil {
		metrics.SourceRequest("onchain", "error")
		return model.TokenMeta{}, err
	}
	meta.ChainID = chainID
	metrics.SourceRequest("onchain", "ok")
	return meta, nil
}

// FetchTokenMeta loads token metadata via ERC20 calls.
func FetchTokenMeta(ctx context.Context, caller ContractCaller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("contract caller is nil")
	}

	stringABI, err := erc20StringABIInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 string abi: %w", err)
	}
	bytes32ABI, err := erc20Bytes32ABIInstance()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	call := func(method string, parsed abi.ABI) ([]interface{}, error) {
		data, err := parsed.Pack(method)
		if err != nil {
			return nil, fmt.Errorf("pack %s: %w", method, err)
		}
		msg := ethereum.CallMsg{To: &token, Data: data}
		resp, err := caller.CallContract(ctx, msg, nil)
		if err != nil {
			return nil, fmt.Errorf("call %s: %w", method, err)
		}
		values, err := parsed.Unpack(method, resp)
		if err != nil {
			return nil, fmt.Errorf("unpack %s: %w", method, err)
		}
		if len(values) == 0 {
			return nil, fmt.Errorf("unpack %s: empty result", method)
		}
		return values, nil
	}

	values, err := call("decimals", stringABI)
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("unsupported decimals type %T", values[0])
	}
	meta.Decimals = model.IntPtr(int(decimals))

	meta.Symbol = readText(call, "symbol", stringABI, bytes32ABI, token, logger)
	meta.Name = readText(call, "name", stringABI, bytes32ABI, token, logger)

	return meta, nil
}

func readText(
	call func(string, abi.ABI) ([]interface{}, error),
	method string,
	stringABI, bytes32ABI abi.ABI,
	token common.Address,
	logger *zap.Logger,
) string {
	if values, err := call(method, stringABI); err == nil {
		if text, ok := values[0].(string); ok {
			return text
		}
	}
	values, err := call(method, bytes32ABI)
	if err == nil {
		if text, ok := bytes32ToString(values[0]); ok {
			return text
		}
	}
	if logger != nil {
		logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
	}
	return ""
}

func bytes32ToString(value interface{}) (string, bool) {
	switch v := value.(type) {
	case [32]byte:
		return string(bytes.TrimRight(v[:], "\x00")), true
	case []byte:
		return string(bytes.TrimRight(v, "\x00")), true
	default:
		return "", false
	}
}
