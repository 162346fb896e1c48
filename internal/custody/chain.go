package custody

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

var ErrReverted = errors.New("transaction reverted")

// Backend is the part of *ethclient.Client the submitter uses.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ChainSubmitter signs token calls with the custodian key and waits for each
// receipt. Sends are serialized so pending nonces never collide.
type ChainSubmitter struct {
	mu      sync.Mutex
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	signer  types.Signer
	poll    time.Duration
	logger  logrus.FieldLogger
}

func NewChainSubmitter(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int, poll time.Duration, logger logrus.FieldLogger) *ChainSubmitter {
	if poll <= 0 {
		poll = 2 * time.Second
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &ChainSubmitter{
		backend: backend,
		key:     key,
		from:    crypto.PubkeyToAddress(key.PublicKey),
		signer:  types.LatestSignerForChainID(chainID),
		poll:    poll,
		logger:  logger,
	}
}

// DialChain connects to rpcURL and builds a submitter for hexKey on whatever
// chain the node reports.
func DialChain(ctx context.Context, rpcURL, hexKey string, poll time.Duration, logger logrus.FieldLogger) (*ChainSubmitter, *ethclient.Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid custody key: %w", err)
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial %s: %w", rpcURL, err)
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to read chain id: %w", err)
	}
	return NewChainSubmitter(client, key, chainID, poll, logger), client, nil
}

func (s *ChainSubmitter) From() common.Address {
	return s.from
}

func (s *ChainSubmitter) Submit(ctx context.Context, to common.Address, data []byte) error {
	tx, err := s.send(ctx, to, data)
	if err != nil {
		return err
	}

	receipt, err := s.waitMined(ctx, tx.Hash())
	if err != nil {
		return err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("%w: %s", ErrReverted, tx.Hash().Hex())
	}

	s.logger.WithFields(logrus.Fields{
		"tx":       tx.Hash().Hex(),
		"to":       to.Hex(),
		"gas_used": receipt.GasUsed,
		"block":    receipt.BlockNumber,
	}).Debug("custody call mined")
	return nil
}

func (s *ChainSubmitter) send(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, err := s.backend.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := s.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	gas, err := s.backend.EstimateGas(ctx, ethereum.CallMsg{From: s.from, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to estimate gas: %w", err)
	}

	tx, err := types.SignTx(types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    big.NewInt(0),
		Gas:      gas * 12 / 10,
		GasPrice: gasPrice,
		Data:     data,
	}), s.signer, s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign: %w", err)
	}
	if err := s.backend.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("failed to send: %w", err)
	}
	return tx, nil
}

func (s *ChainSubmitter) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		receipt, err := s.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return nil, fmt.Errorf("failed to fetch receipt %s: %w", hash.Hex(), err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for %s: %w", hash.Hex(), ctx.Err())
		case <-ticker.C:
		}
	}
}
