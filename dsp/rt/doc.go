// Package rt provides allocation-free and non-blocking building blocks for
// code that runs on a real-time audio thread.
//
// Memory:
//   - Pool: fixed-capacity pool of preallocated values with lock-free Get/Put.
//   - SlabPool: Pool of equally sized float64 blocks carved from one slab.
//   - ObjectPool: Pool whose values are reset when returned.
//   - Arena: bump allocator over a float64 slab with mark/restore scopes and
//     optional page locking.
//
// Parameter hand-off:
//   - LockedFilter: mutex-guarded biquad whose audio side only ever TryLocks
//     and passes audio through while a writer holds the lock.
//   - DoubleBufferedFilter: two biquad instances; writers configure the idle
//     one and publish it with an atomic index swap. The audio side never
//     locks.
//
// Nothing in this package allocates or blocks on the audio path.
package rt
