package repositories

import "context"

// Store groups the repositories behind one backend and provides the
// transactional scope used by checkout.
type Store interface {
	Products() ProductRepository
	Carts() CartRepository
	Orders() OrderRepository
	Users() UserRepository

	// Atomic runs fn so that either all of its writes become visible or none
	// do. fn must use the ctx and Store it is given, not the outer ones.
	Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error

	Close() error
}

var (
	_ Store = (*MemoryStore)(nil)
	_ Store = (*GORMStore)(nil)
	_ Store = (*MongoStore)(nil)
)
