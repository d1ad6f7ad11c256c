package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	pfirestore "github.com/scentora/storefront/internal/platform/firestore"
	"github.com/scentora/storefront/internal/repositories"
)

const sequencesCollection = "orderSequences"

type sequenceDocument struct {
	Year      int       `firestore:"year"`
	Last      int64     `firestore:"last"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// OrderSequenceRepository hands out order numbers from one document per calendar year.
type OrderSequenceRepository struct {
	provider *pfirestore.Provider
	clock    func() time.Time
}

func NewOrderSequenceRepository(provider *pfirestore.Provider) (*OrderSequenceRepository, error) {
	if provider == nil {
		return nil, errors.New("order sequence repository requires firestore provider")
	}
	return &OrderSequenceRepository{provider: provider, clock: time.Now}, nil
}

func sequenceDocID(year int) string {
	return fmt.Sprintf("orders-%04d", year)
}

// NextOrderSequence returns the next number for the given year, starting at 1.
func (r *OrderSequenceRepository) NextOrderSequence(ctx context.Context, year int) (int64, error) {
	if year < 2000 || year > 9999 {
		return 0, repositories.NewLedgerError(repositories.SequenceErrorInvalidYear, fmt.Sprintf("year %d out of range", year), nil)
	}
	coll, err := r.provider.Collection(ctx, sequencesCollection)
	if err != nil {
		return 0, err
	}
	ref := coll.Doc(sequenceDocID(year))

	var next int64
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc := sequenceDocument{Year: year}
		snap, err := tx.Get(ref)
		if err != nil && !pfirestore.IsNotFound(err) {
			return err
		}
		if err == nil {
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode sequence %d: %w", year, err)
			}
		}
		doc.Last++
		doc.UpdatedAt = r.clock().UTC()
		next = doc.Last
		return tx.Set(ref, doc)
	})
	if err != nil {
		return 0, pfirestore.WrapError("orderSequences.next", err)
	}
	return next, nil
}
