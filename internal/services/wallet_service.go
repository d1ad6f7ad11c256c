package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/repositories"
)

var (
	// ErrWalletInvalidInput signals a malformed wallet command.
	ErrWalletInvalidInput = errors.New("wallet: invalid input")
	// ErrWalletInsufficientBalance indicates a debit larger than the balance.
	ErrWalletInsufficientBalance = errors.New("wallet: insufficient balance")
)

// WalletServiceDeps bundles the collaborators required to construct the wallet service.
type WalletServiceDeps struct {
	Wallets repositories.WalletRepository
	Logger  Logger
}

type walletService struct {
	wallets repositories.WalletRepository
	logger  Logger
}

// NewWalletService constructs the wallet ledger service.
func NewWalletService(deps WalletServiceDeps) (WalletService, error) {
	if deps.Wallets == nil {
		return nil, errors.New("wallet service: wallet repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &walletService{wallets: deps.Wallets, logger: logger}, nil
}

func (s *walletService) GetWallet(ctx context.Context, userID string, pager Pagination) (WalletSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return WalletSummary{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}
	wallet, err := s.wallets.Get(ctx, userID)
	if err != nil {
		return WalletSummary{}, mapWalletError(err)
	}
	page, err := s.wallets.ListTransactions(ctx, userID, pager)
	if err != nil {
		return WalletSummary{}, mapWalletError(err)
	}
	return WalletSummary{Wallet: wallet, Transactions: page}, nil
}

// Credit posts a standalone ledger entry, such as an admin adjustment. Refunds and checkout
// debits are posted inside the order transactions instead, through the same repository rules.
func (s *walletService) Credit(ctx context.Context, cmd WalletCommand) (float64, error) {
	return s.post(ctx, domain.WalletCredit, cmd)
}

func (s *walletService) Debit(ctx context.Context, cmd WalletCommand) (float64, error) {
	return s.post(ctx, domain.WalletDebit, cmd)
}

func (s *walletService) post(ctx context.Context, kind domain.WalletTransactionType, cmd WalletCommand) (float64, error) {
	posting, err := walletPosting(kind, cmd)
	if err != nil {
		return 0, err
	}
	entry, err := s.wallets.Apply(ctx, posting)
	if err != nil {
		return 0, mapWalletError(err)
	}
	s.logger(ctx, "wallet."+string(kind), map[string]any{
		"userId":  posting.UserID,
		"amount":  posting.Amount,
		"orderId": posting.OrderID,
		"balance": entry.BalanceAfter,
		"entryId": entry.ID,
	})
	return entry.BalanceAfter, nil
}

func walletPosting(kind domain.WalletTransactionType, cmd WalletCommand) (domain.WalletPosting, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.WalletPosting{}, fmt.Errorf("%w: user id is required", ErrWalletInvalidInput)
	}
	amount := domain.Round2(cmd.Amount)
	if amount <= 0 {
		return domain.WalletPosting{}, fmt.Errorf("%w: amount must be positive, got %.2f", ErrWalletInvalidInput, cmd.Amount)
	}
	return domain.WalletPosting{
		UserID:         userID,
		Type:           kind,
		Amount:         amount,
		Description:    strings.TrimSpace(cmd.Description),
		OrderID:        strings.TrimSpace(cmd.OrderID),
		IdempotencyKey: strings.TrimSpace(cmd.IdempotencyKey),
	}, nil
}

func mapWalletError(err error) error {
	if code, ok := repositories.LedgerCode(err); ok {
		switch code {
		case repositories.WalletErrorInsufficient:
			return fmt.Errorf("%w: %v", ErrWalletInsufficientBalance, err)
		case repositories.WalletErrorInvalidAmount:
			return fmt.Errorf("%w: %v", ErrWalletInvalidInput, err)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsUnavailable() {
		return fmt.Errorf("wallet: repository unavailable: %w", err)
	}
	return err
}
