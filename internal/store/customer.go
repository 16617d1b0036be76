package store

import (
	"context"

	"tillsync/internal/cache"
	"tillsync/internal/core/scope"
	"tillsync/internal/domain/customer"
	"tillsync/internal/queue"
	"tillsync/internal/remote"
	"tillsync/pkg/logger"
)

// KindCustomer is the customer cache namespace.
const KindCustomer = "customer"

// CustomerStore is the customer projection for one tenant session.
type CustomerStore struct {
	*Store[customer.Customer, *customer.Customer]
}

// NewCustomerStore creates the customer store for a session. Customers are
// cache-first like products.
func NewCustomerStore(sc scope.Scope, api remote.CustomerAPI, c cache.Cache, q queue.Queue, log *logger.Logger) *CustomerStore {
	base := New[customer.Customer, *customer.Customer](Config[customer.Customer]{
		Kind:       KindCustomer,
		EntityType: queue.EntityCustomer,
		Scope:      sc,
		Policy:     CacheFirst,
		Remote:     customerAdapter{api},
		Cache:      c,
		Queue:      q,
		SearchText: func(cu *customer.Customer) []string {
			return []string{cu.Name, cu.Email, cu.Phone}
		},
		Payload: func(cu customer.Customer) queue.Payload {
			return queue.CustomerPayload{Customer: cu}
		},
		Decode: func(tx *queue.Transaction) (customer.Customer, error) {
			p, err := queue.DecodeCustomer(tx)
			if err != nil {
				return customer.Customer{}, err
			}
			return p.Customer, nil
		},
		Log: log,
	})
	return &CustomerStore{Store: base}
}

type customerAdapter struct {
	api remote.CustomerAPI
}

func (a customerAdapter) List(ctx context.Context, orgID string) ([]customer.Customer, error) {
	return a.api.ListCustomers(ctx, orgID)
}

func (a customerAdapter) Create(ctx context.Context, c customer.Customer) (*customer.Customer, error) {
	return a.api.CreateCustomer(ctx, c)
}

func (a customerAdapter) Update(ctx context.Context, entityID string, c customer.Customer) (*customer.Customer, error) {
	return a.api.UpdateCustomer(ctx, entityID, c)
}

func (a customerAdapter) Delete(ctx context.Context, entityID string) error {
	return a.api.DeleteCustomer(ctx, entityID)
}
