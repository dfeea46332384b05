package chain

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"

	"github.com/calebhwang/predictd/internal/domain"
)

// usdcDecimals converts vault amounts from the token's smallest unit.
const usdcDecimals = 6

// depositTopic is the signature hash of Deposit(address,uint256).
var depositTopic = common.BytesToHash(ethcrypto.Keccak256([]byte("Deposit(address,uint256)")))

// Depositor credits incoming vault deposits. Satisfied by the engine.
type Depositor interface {
	EnsureUser(ctx context.Context, wallet string) (domain.User, error)
	Deposit(ctx context.Context, userID string, amount decimal.Decimal, source string) (decimal.Decimal, error)
}

// DepositListener subscribes to the vault contract's Deposit logs and
// credits each one to the depositing wallet's account.
type DepositListener struct {
	client    *ethclient.Client
	vault     common.Address
	depositor Depositor
	log       *slog.Logger
}

// NewDepositListener dials the node at wsURL, which must support log
// subscriptions.
func NewDepositListener(ctx context.Context, wsURL, vaultAddr string, depositor Depositor, log *slog.Logger) (*DepositListener, error) {
	client, err := ethclient.DialContext(ctx, wsURL)
	if err != nil {
		return nil, fmt.Errorf("chain: dial %s: %w", wsURL, err)
	}
	return &DepositListener{
		client:    client,
		vault:     common.HexToAddress(vaultAddr),
		depositor: depositor,
		log:       log,
	}, nil
}

// Close releases the underlying RPC connection.
func (l *DepositListener) Close() {
	l.client.Close()
}

// Run subscribes to Deposit logs and processes them until the context is
// cancelled, redialing the subscription after transient failures.
func (l *DepositListener) Run(ctx context.Context) error {
	l.log.Info("deposit listener started", slog.String("vault", l.vault.Hex()))
	for {
		err := l.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.log.Warn("deposit subscription lost, retrying",
			slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
		}
	}
}

func (l *DepositListener) subscribe(ctx context.Context) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{l.vault},
		Topics:    [][]common.Hash{{depositTopic}},
	}
	logs := make(chan types.Log, 64)
	sub, err := l.client.SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return fmt.Errorf("chain: subscribe logs: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-sub.Err():
			return fmt.Errorf("chain: subscription: %w", err)
		case entry := <-logs:
			l.handle(ctx, entry)
		}
	}
}

func (l *DepositListener) handle(ctx context.Context, entry types.Log) {
	if entry.Removed {
		return
	}
	wallet, amount, err := ParseDeposit(entry)
	if err != nil {
		l.log.Warn("skipping unparseable deposit log",
			slog.String("tx", entry.TxHash.Hex()),
			slog.String("error", err.Error()))
		return
	}

	user, err := l.depositor.EnsureUser(ctx, wallet)
	if err != nil {
		l.log.Error("deposit user lookup failed",
			slog.String("wallet", wallet),
			slog.String("error", err.Error()))
		return
	}
	if _, err := l.depositor.Deposit(ctx, user.ID, amount, entry.TxHash.Hex()); err != nil {
		l.log.Error("deposit credit failed",
			slog.String("wallet", wallet),
			slog.String("amount", amount.String()),
			slog.String("error", err.Error()))
		return
	}

	l.log.Info("deposit credited",
		slog.String("wallet", wallet),
		slog.String("amount", amount.String()),
		slog.String("tx", entry.TxHash.Hex()))
}

// ParseDeposit extracts the depositor address and collateral amount from a
// Deposit(address indexed user, uint256 amount) log.
func ParseDeposit(entry types.Log) (wallet string, amount decimal.Decimal, err error) {
	if len(entry.Topics) < 2 {
		return "", decimal.Zero, fmt.Errorf("chain: deposit log missing user topic")
	}
	if len(entry.Data) < 32 {
		return "", decimal.Zero, fmt.Errorf("chain: deposit log missing amount data")
	}
	wallet = common.BytesToAddress(entry.Topics[1].Bytes()).Hex()
	raw := new(big.Int).SetBytes(entry.Data[:32])
	amount = decimal.NewFromBigInt(raw, -usdcDecimals)
	if !amount.IsPositive() {
		return "", decimal.Zero, fmt.Errorf("chain: deposit amount %s not positive", amount)
	}
	return wallet, amount, nil
}
