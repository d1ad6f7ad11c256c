package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/platform/pagination"
	pfirestore "github.com/scentora/storefront/internal/platform/firestore"
	"github.com/scentora/storefront/internal/repositories"
)

const ordersCollection = "orders"

// OrderRepository implements repositories.OrderRepository.
type OrderRepository struct {
	provider *pfirestore.Provider
	clock    func() time.Time
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return domain.Order{}, repositories.NewLedgerError(repositories.OrderErrorNotFound, "order id is required", nil)
	}
	coll, err := r.provider.Collection(ctx, ordersCollection)
	if err != nil {
		return domain.Order{}, err
	}
	snap, err := coll.Doc(orderID).Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Order{}, repositories.NewLedgerError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
		}
		return domain.Order{}, pfirestore.WrapError("orders.get", err)
	}
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, fmt.Errorf("decode order %s: %w", orderID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// ListByUser returns the user's orders, newest first.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.Page[domain.Order], error) {
	if r == nil || r.provider == nil {
		return domain.Page[domain.Order]{}, errors.New("order repository not initialised")
	}
	coll, err := r.provider.Collection(ctx, ordersCollection)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	pageSize := pagination.Limit(pager.PageSize)

	query := coll.Where("userId", "==", strings.TrimSpace(userID)).
		OrderBy("createdAt", firestore.Desc).
		OrderBy(firestore.DocumentID, firestore.Desc)
	if token := strings.TrimSpace(pager.PageToken); token != "" {
		cursor, err := pagination.DecodeToken(token)
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		query = query.StartAfter(cursor.CreatedAt, cursor.ID)
	}

	iter := query.Limit(pageSize + 1).Documents(ctx)
	defer iter.Stop()

	orders := make([]domain.Order, 0, pageSize)
	var hasMore bool
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Page[domain.Order]{}, pfirestore.WrapError("orders.list", err)
		}
		if len(orders) == pageSize {
			hasMore = true
			break
		}
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return domain.Page[domain.Order]{}, fmt.Errorf("decode order %s: %w", snap.Ref.ID, err)
		}
		orders = append(orders, doc.toDomain(snap.Ref.ID))
	}

	page := domain.Page[domain.Order]{Items: orders}
	if hasMore && len(orders) > 0 {
		last := orders[len(orders)-1]
		token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		if err != nil {
			return domain.Page[domain.Order]{}, err
		}
		page.NextPageToken = token
	}
	return page, nil
}

// Commit persists the order when the stored version still equals expectedVersion. Wallet postings
// are applied in the same transaction so a refund is never credited without the matching order state.
func (r *OrderRepository) Commit(ctx context.Context, order domain.Order, expectedVersion int64, postings []domain.WalletPosting) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	orderID := strings.TrimSpace(order.ID)
	if orderID == "" {
		return domain.Order{}, repositories.NewLedgerError(repositories.OrderErrorNotFound, "order id is required", nil)
	}
	orders, err := r.provider.Collection(ctx, ordersCollection)
	if err != nil {
		return domain.Order{}, err
	}
	wallets, err := r.provider.Collection(ctx, walletsCollection)
	if err != nil {
		return domain.Order{}, err
	}

	var saved domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := orders.Doc(orderID)
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return repositories.NewLedgerError(repositories.OrderErrorNotFound, fmt.Sprintf("order %s not found", orderID), err)
			}
			return err
		}
		var current orderDocument
		if err := snap.DataTo(&current); err != nil {
			return fmt.Errorf("decode order %s: %w", orderID, err)
		}
		if current.Version != expectedVersion {
			return repositories.NewLedgerError(repositories.OrderErrorVersionConflict,
				fmt.Sprintf("order %s is at version %d, expected %d", orderID, current.Version, expectedVersion), nil)
		}

		now := r.clock()
		stage, err := stageWalletPostings(tx, wallets, postings, now)
		if err != nil {
			return err
		}

		next := order.Clone()
		next.ID = orderID
		next.Version = expectedVersion + 1
		next.UpdatedAt = now
		if next.CreatedAt.IsZero() {
			next.CreatedAt = current.CreatedAt
		}
		if err := tx.Set(ref, newOrderDocument(next)); err != nil {
			return err
		}
		if err := stage.write(tx); err != nil {
			return err
		}
		saved = next
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.commit", err)
	}
	return saved, nil
}
