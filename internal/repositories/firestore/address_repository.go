package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/scentora/storefront/internal/domain"
	pfirestore "github.com/scentora/storefront/internal/platform/firestore"
	"github.com/scentora/storefront/internal/repositories"
)

const addressCollectionPattern = "users/%s/addresses"

// AddressRepository reads user addresses stored under users/{uid}/addresses.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)

func (r *AddressRepository) FindByID(ctx context.Context, userID, addressID string) (domain.Address, error) {
	coll, err := r.collection(ctx, userID)
	if err != nil {
		return domain.Address{}, err
	}
	id := strings.TrimSpace(addressID)
	if id == "" {
		return domain.Address{}, repositories.NewLedgerError(repositories.AddressErrorNotFound, "address id is required", nil)
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Address{}, repositories.NewLedgerError(repositories.AddressErrorNotFound, fmt.Sprintf("address %s not found", id), err)
		}
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}
	var doc addressDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Address{}, fmt.Errorf("decode address %s: %w", id, err)
	}
	return domain.Address{
		ID:         snap.Ref.ID,
		UserID:     strings.TrimSpace(userID),
		Name:       doc.Name,
		Phone:      doc.Phone,
		Line1:      doc.Line1,
		Line2:      doc.Line2,
		City:       doc.City,
		State:      doc.State,
		PostalCode: doc.PostalCode,
		Country:    doc.Country,
		IsDefault:  doc.IsDefault,
		CreatedAt:  doc.CreatedAt,
		UpdatedAt:  doc.UpdatedAt,
	}, nil
}

func (r *AddressRepository) collection(ctx context.Context, userID string) (*firestore.CollectionRef, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("address repository not initialised")
	}
	uid := strings.TrimSpace(userID)
	if uid == "" {
		return nil, errors.New("address repository: user id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(fmt.Sprintf(addressCollectionPattern, uid)), nil
}
