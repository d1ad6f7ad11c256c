package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/scentora/storefront/internal/domain"
	pfirestore "github.com/scentora/storefront/internal/platform/firestore"
	"github.com/scentora/storefront/internal/repositories"
)

const paymentSessionsCollection = "paymentSessions"

type paymentSessionDocument struct {
	Provider        string    `firestore:"provider"`
	UserID          string    `firestore:"userId"`
	AddressID       string    `firestore:"addressId"`
	CouponCode      string    `firestore:"couponCode,omitempty"`
	AmountMinor     int64     `firestore:"amountMinor"`
	Currency        string    `firestore:"currency"`
	CartFingerprint string    `firestore:"cartFingerprint"`
	CreatedAt       time.Time `firestore:"createdAt"`
}

// PaymentSessionRepository stores one document per gateway order id.
type PaymentSessionRepository struct {
	provider *pfirestore.Provider
}

func NewPaymentSessionRepository(provider *pfirestore.Provider) (*PaymentSessionRepository, error) {
	if provider == nil {
		return nil, errors.New("payment session repository requires firestore provider")
	}
	return &PaymentSessionRepository{provider: provider}, nil
}

var _ repositories.PaymentSessionRepository = (*PaymentSessionRepository)(nil)

func paymentSessionDocID(gatewayOrderID string) (string, error) {
	id := strings.TrimSpace(gatewayOrderID)
	if id == "" || strings.Contains(id, "/") {
		return "", repositories.NewLedgerError(repositories.PaymentSessionNotFound, fmt.Sprintf("invalid gateway order id %q", gatewayOrderID), nil)
	}
	return id, nil
}

// Save overwrites the session; the gateway returns the same order id for a retried request.
func (r *PaymentSessionRepository) Save(ctx context.Context, session domain.PaymentSession) error {
	id, err := paymentSessionDocID(session.GatewayOrderID)
	if err != nil {
		return err
	}
	coll, err := r.provider.Collection(ctx, paymentSessionsCollection)
	if err != nil {
		return err
	}
	doc := paymentSessionDocument{
		Provider:        session.Provider,
		UserID:          session.UserID,
		AddressID:       session.AddressID,
		CouponCode:      session.CouponCode,
		AmountMinor:     session.AmountMinor,
		Currency:        session.Currency,
		CartFingerprint: session.CartFingerprint,
		CreatedAt:       session.CreatedAt.UTC(),
	}
	if _, err := coll.Doc(id).Set(ctx, doc); err != nil {
		return pfirestore.WrapError("paymentSessions.set", err)
	}
	return nil
}

func (r *PaymentSessionRepository) FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (domain.PaymentSession, error) {
	id, err := paymentSessionDocID(gatewayOrderID)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	coll, err := r.provider.Collection(ctx, paymentSessionsCollection)
	if err != nil {
		return domain.PaymentSession{}, err
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.PaymentSession{}, repositories.NewLedgerError(repositories.PaymentSessionNotFound, fmt.Sprintf("no checkout recorded for gateway order %s", id), err)
		}
		return domain.PaymentSession{}, pfirestore.WrapError("paymentSessions.get", err)
	}
	var doc paymentSessionDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.PaymentSession{}, fmt.Errorf("decode payment session %s: %w", id, err)
	}
	return domain.PaymentSession{
		GatewayOrderID:  snap.Ref.ID,
		Provider:        doc.Provider,
		UserID:          doc.UserID,
		AddressID:       doc.AddressID,
		CouponCode:      doc.CouponCode,
		AmountMinor:     doc.AmountMinor,
		Currency:        doc.Currency,
		CartFingerprint: doc.CartFingerprint,
		CreatedAt:       doc.CreatedAt,
	}, nil
}
