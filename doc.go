// Package flashcache is a cache-aside store for entities that live in a
// durable database. Callers pass a Loader that reads the database; the store
// decides when to call it.
//
// Strategies:
//   - PassThrough: load on miss. Confirmed-absent ids are cached as a short
//     lived absent marker so repeated misses do not reach the database.
//   - Mutex: like PassThrough, but only the holder of a per-key lock loads.
//     Everybody else waits with bounded backoff and re-reads, failing with
//     ErrBusy once the budget is spent.
//   - LogicalExpire: entries carry an expiry inside the payload and no store
//     TTL. Expired entries are still served while a single background worker
//     refreshes them. Cold keys are never loaded on read; use Warm.
//
// Keys:
//
//	<ns>:<kind>:<id>       - entries
//	<ns>:lock:<kind>:<id>  - rebuild locks
//
// Writes go to the database first and then invalidate the entry:
//
//	err := shops.Update(ctx, id, func(ctx context.Context) error {
//	    return db.UpdateShop(ctx, shop)
//	})
package flashcache
