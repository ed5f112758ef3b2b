package lock

import "context"

// TenantLock is the Concurrency Gate contract the Request Handler depends
// on; Gate and DistributedGate both implement it.
type TenantLock interface {
	Lock(ctx context.Context, key string) (unlock func(context.Context) error, err error)
}
