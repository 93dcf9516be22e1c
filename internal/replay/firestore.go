package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Ensure FirestoreGuard implements the Guard interface
var _ Guard = (*FirestoreGuard)(nil)

// FirestoreGuard is a replay guard backed by Firestore, shared across broker
// instances. Reservation is a transactional document create: Firestore
// guarantees exactly one of two racing creates for the same key succeeds.
type FirestoreGuard struct {
	client     *firestore.Client
	collection string
	ttl        time.Duration
}

// consumedCodeDoc is the Firestore document for a reserved key. Only the
// replay key (a hash) is stored, never the authorization code itself.
type consumedCodeDoc struct {
	ConsumedAt time.Time `firestore:"consumed_at"`
	ExpiresAt  time.Time `firestore:"expires_at"`
}

// NewFirestoreGuard creates a Firestore-backed replay guard
func NewFirestoreGuard(client *firestore.Client, collection string, ttl time.Duration) *FirestoreGuard {
	if collection == "" {
		collection = "oauth_broker_consumed_codes"
	}
	return &FirestoreGuard{
		client:     client,
		collection: collection,
		ttl:        ttl,
	}
}

// CheckAndReserve implements Guard
func (g *FirestoreGuard) CheckAndReserve(ctx context.Context, key string) error {
	ref := g.client.Collection(g.collection).Doc(key)
	now := time.Now()

	err := g.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, err := tx.Get(ref)
		if err == nil {
			var existing consumedCodeDoc
			if err := doc.DataTo(&existing); err != nil {
				return fmt.Errorf("failed to unmarshal consumed code: %w", err)
			}
			if now.Before(existing.ExpiresAt) {
				return ErrAlreadyConsumed
			}
			// Entry outlived its TTL but was never swept; reclaim it
			return tx.Set(ref, consumedCodeDoc{
				ConsumedAt: now,
				ExpiresAt:  now.Add(g.ttl),
			})
		}
		if status.Code(err) != codes.NotFound {
			return fmt.Errorf("failed to get consumed code: %w", err)
		}

		return tx.Create(ref, consumedCodeDoc{
			ConsumedAt: now,
			ExpiresAt:  now.Add(g.ttl),
		})
	})

	if err != nil {
		if errors.Is(err, ErrAlreadyConsumed) {
			return ErrAlreadyConsumed
		}
		if status.Code(err) == codes.AlreadyExists {
			return ErrAlreadyConsumed
		}
		return fmt.Errorf("failed to reserve code: %w", err)
	}
	return nil
}

// SweepExpired implements Guard
func (g *FirestoreGuard) SweepExpired(ctx context.Context) (int, error) {
	iter := g.client.Collection(g.collection).
		Where("expires_at", "<", time.Now()).
		Documents(ctx)
	defer iter.Stop()

	removed := 0
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return removed, fmt.Errorf("failed to iterate consumed codes: %w", err)
		}
		if _, err := doc.Ref.Delete(ctx); err != nil && status.Code(err) != codes.NotFound {
			return removed, fmt.Errorf("failed to delete consumed code: %w", err)
		}
		removed++
	}
	return removed, nil
}
