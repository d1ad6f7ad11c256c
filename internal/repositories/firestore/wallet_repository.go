package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"google.golang.org/api/iterator"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/platform/pagination"
	pfirestore "github.com/scentora/storefront/internal/platform/firestore"
	"github.com/scentora/storefront/internal/repositories"
)

const (
	walletsCollection            = "wallets"
	walletTransactionsCollection = "transactions"
)

// walletEntryNamespace scopes deterministic transaction ids derived from idempotency keys.
var walletEntryNamespace = uuid.MustParse("6f2c2d0e-8a53-4c1b-9b7e-3f3c5a1f0d42")

// WalletRepository implements repositories.WalletRepository using one document per user and an
// append-only transactions subcollection.
type WalletRepository struct {
	provider *pfirestore.Provider
	clock    func() time.Time
}

// NewWalletRepository constructs a Firestore-backed wallet ledger.
func NewWalletRepository(provider *pfirestore.Provider) (*WalletRepository, error) {
	if provider == nil {
		return nil, errors.New("wallet repository requires firestore provider")
	}
	return &WalletRepository{
		provider: provider,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Get returns the wallet, or a zero balance wallet when the user never had one.
func (r *WalletRepository) Get(ctx context.Context, userID string) (domain.Wallet, error) {
	if r == nil || r.provider == nil {
		return domain.Wallet{}, errors.New("wallet repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Wallet{}, repositories.NewLedgerError(repositories.WalletErrorInvalidAmount, "user id is required", nil)
	}
	coll, err := r.provider.Collection(ctx, walletsCollection)
	if err != nil {
		return domain.Wallet{}, err
	}
	snap, err := coll.Doc(userID).Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Wallet{UserID: userID}, nil
		}
		return domain.Wallet{}, pfirestore.WrapError("wallets.get", err)
	}
	var doc walletDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Wallet{}, fmt.Errorf("decode wallet %s: %w", userID, err)
	}
	return domain.Wallet{
		UserID:    userID,
		Balance:   domain.Round2(doc.Balance),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}, nil
}

// ListTransactions returns ledger entries newest first.
func (r *WalletRepository) ListTransactions(ctx context.Context, userID string, pager domain.Pagination) (domain.Page[domain.WalletTransaction], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.WalletTransaction]{}, errors.New("wallet repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	coll, err := r.provider.Collection(ctx, walletsCollection)
	if err != nil {
		return domain.Page[domain.WalletTransaction]{}, err
	}

	pageSize := pagination.Limit(pager.PageSize)

	query := coll.Doc(userID).Collection(walletTransactionsCollection).
		OrderBy("date", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.Page[domain.WalletTransaction]{}, err
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}
	query = query.Limit(pageSize + 1)

	iter := query.Documents(ctx)
	defer iter.Stop()

	items := make([]domain.WalletTransaction, 0, pageSize)
	var hasMore bool
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.WalletTransaction]{}, pfirestore.WrapError("wallets.transactions.list", err)
		}
		if len(items) == pageSize {
			hasMore = true
			break
		}
		var doc walletTransactionDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.WalletTransaction]{}, fmt.Errorf("decode wallet transaction %s: %w", snap.Ref.ID, err)
		}
		items = append(items, doc.toDomain(snap.Ref.ID, userID))
	}

	page := domain.Page[domain.WalletTransaction]{Items: items}
	if hasMore && len(items) > 0 {
		last := items[len(items)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.Page[domain.WalletTransaction]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// Apply posts one movement in its own transaction.
func (r *WalletRepository) Apply(ctx context.Context, posting domain.WalletPosting) (domain.WalletTransaction, error) {
	if r == nil || r.provider == nil {
		return domain.WalletTransaction{}, errors.New("wallet repository not initialised")
	}
	coll, err := r.provider.Collection(ctx, walletsCollection)
	if err != nil {
		return domain.WalletTransaction{}, err
	}

	var result domain.WalletTransaction
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		staged, err := stageWalletPostings(tx, coll, []domain.WalletPosting{posting}, r.clock())
		if err != nil {
			return err
		}
		if err := staged.write(tx); err != nil {
			return err
		}
		result = staged.entries[0]
		return nil
	})
	if err != nil {
		return domain.WalletTransaction{}, pfirestore.WrapError("wallets.apply", err)
	}
	return result, nil
}

type stagedWalletEntry struct {
	ref *firestore.DocumentRef
	doc walletTransactionDocument
}

type stagedWallet struct {
	ref     *firestore.DocumentRef
	doc     walletDocument
	changed bool
}

// walletStage holds the reads of a set of postings so that callers can finish their own reads
// before any write is issued on the transaction.
type walletStage struct {
	wallets    map[string]*stagedWallet
	newEntries []stagedWalletEntry
	entries    []domain.WalletTransaction
}

func walletEntryID(key string) string {
	if strings.TrimSpace(key) == "" {
		return strings.ToLower(ulid.Make().String())
	}
	return uuid.NewSHA1(walletEntryNamespace, []byte(key)).String()
}

// stageWalletPostings reads wallet balances and existing entries for the postings. An entry whose
// idempotency key already exists is reported as a replay and produces no write.
func stageWalletPostings(tx *firestore.Transaction, coll *firestore.CollectionRef, postings []domain.WalletPosting, now time.Time) (*walletStage, error) {
	stage := &walletStage{wallets: make(map[string]*stagedWallet)}
	for _, posting := range postings {
		userID := strings.TrimSpace(posting.UserID)
		if userID == "" {
			return nil, repositories.NewLedgerError(repositories.WalletErrorInvalidAmount, "wallet posting requires user id", nil)
		}
		amount := domain.Round2(posting.Amount)
		if amount <= 0 {
			return nil, repositories.NewLedgerError(repositories.WalletErrorInvalidAmount, fmt.Sprintf("wallet amount must be positive, got %.2f", posting.Amount), nil)
		}
		if posting.Type != domain.WalletCredit && posting.Type != domain.WalletDebit {
			return nil, repositories.NewLedgerError(repositories.WalletErrorInvalidAmount, fmt.Sprintf("unknown wallet transaction type %q", posting.Type), nil)
		}

		wallet, ok := stage.wallets[userID]
		if !ok {
			ref := coll.Doc(userID)
			snap, err := tx.Get(ref)
			wallet = &stagedWallet{ref: ref}
			switch {
			case err == nil:
				if err := snap.DataTo(&wallet.doc); err != nil {
					return nil, fmt.Errorf("decode wallet %s: %w", userID, err)
				}
			case pfirestore.IsNotFound(err):
				wallet.doc = walletDocument{CreatedAt: now}
			default:
				return nil, err
			}
			stage.wallets[userID] = wallet
		}

		entryRef := wallet.ref.Collection(walletTransactionsCollection).Doc(walletEntryID(posting.IdempotencyKey))
		if posting.IdempotencyKey != "" {
			snap, err := tx.Get(entryRef)
			if err == nil {
				var existing walletTransactionDocument
				if err := snap.DataTo(&existing); err != nil {
					return nil, fmt.Errorf("decode wallet transaction %s: %w", entryRef.ID, err)
				}
				stage.entries = append(stage.entries, existing.toDomain(entryRef.ID, userID))
				continue
			}
			if !pfirestore.IsNotFound(err) {
				return nil, err
			}
		}

		balance := domain.Round2(wallet.doc.Balance)
		if posting.Type == domain.WalletDebit {
			if balance < amount {
				return nil, repositories.NewLedgerError(repositories.WalletErrorInsufficient,
					fmt.Sprintf("wallet balance %.2f is below debit %.2f", balance, amount), nil)
			}
			balance = domain.SubtractAmounts(balance, amount)
		} else {
			balance = domain.SumAmounts(balance, amount)
		}
		wallet.doc.Balance = balance
		wallet.doc.UpdatedAt = now
		wallet.changed = true

		doc := walletTransactionDocument{
			Type:           string(posting.Type),
			Amount:         amount,
			Description:    strings.TrimSpace(posting.Description),
			OrderID:        strings.TrimSpace(posting.OrderID),
			IdempotencyKey: posting.IdempotencyKey,
			BalanceAfter:   balance,
			CreatedAt:      now,
		}
		stage.newEntries = append(stage.newEntries, stagedWalletEntry{ref: entryRef, doc: doc})
		stage.entries = append(stage.entries, doc.toDomain(entryRef.ID, userID))
	}
	return stage, nil
}

func (s *walletStage) write(tx *firestore.Transaction) error {
	if s == nil {
		return nil
	}
	for _, wallet := range s.wallets {
		if !wallet.changed {
			continue
		}
		if err := tx.Set(wallet.ref, wallet.doc); err != nil {
			return err
		}
	}
	for _, entry := range s.newEntries {
		if err := tx.Create(entry.ref, entry.doc); err != nil {
			return err
		}
	}
	return nil
}
