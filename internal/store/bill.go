package store

import (
	"context"

	"tillsync/internal/cache"
	"tillsync/internal/core/scope"
	"tillsync/internal/domain/bill"
	"tillsync/internal/queue"
	"tillsync/internal/remote"
	"tillsync/pkg/logger"
)

// KindBill is the bill cache namespace.
const KindBill = "bill"

// BillStore is the bill projection for one tenant session.
// Bill finalization is enforced only by the server: the store never
// re-derives the immutability rule, it treats the server's BILL_FINALIZED
// rejection as terminal, so such a mutation is never queued or retried.
type BillStore struct {
	*Store[bill.Bill, *bill.Bill]
}

// NewBillStore creates the bill store for a session. Bills are remote-first:
// the cache is only a write-through for offline lookups, reads always go to
// the server.
func NewBillStore(sc scope.Scope, api remote.BillAPI, c cache.Cache, q queue.Queue, log *logger.Logger) *BillStore {
	base := New[bill.Bill, *bill.Bill](Config[bill.Bill]{
		Kind:       KindBill,
		EntityType: queue.EntityBill,
		Scope:      sc,
		Policy:     RemoteFirst,
		Remote:     billAdapter{api},
		Cache:      c,
		Queue:      q,
		SearchText: func(b *bill.Bill) []string {
			return []string{b.Number, b.ID}
		},
		Payload: func(b bill.Bill) queue.Payload {
			return queue.BillPayload{Bill: b}
		},
		Decode: func(tx *queue.Transaction) (bill.Bill, error) {
			p, err := queue.DecodeBill(tx)
			if err != nil {
				return bill.Bill{}, err
			}
			return p.Bill, nil
		},
		Log: log,
	})
	return &BillStore{Store: base}
}

type billAdapter struct {
	api remote.BillAPI
}

func (a billAdapter) List(ctx context.Context, orgID string) ([]bill.Bill, error) {
	return a.api.ListBills(ctx, orgID)
}

func (a billAdapter) Create(ctx context.Context, b bill.Bill) (*bill.Bill, error) {
	return a.api.CreateBill(ctx, b)
}

func (a billAdapter) Update(ctx context.Context, entityID string, b bill.Bill) (*bill.Bill, error) {
	return a.api.UpdateBill(ctx, entityID, b)
}

func (a billAdapter) Delete(ctx context.Context, entityID string) error {
	return a.api.DeleteBill(ctx, entityID)
}
