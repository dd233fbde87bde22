// Package vm wraps the OS virtual-memory primitives that the segregated
// heap and the bump arena build on: reserving and releasing address
// ranges, and committing/decommitting pages within a reservation.
//
// This package is intentionally thin. The hard invariants live in
// malloc.MemorySpace; vm only has to honour the contract each primitive
// promises and fail cleanly (returning 0/false) when the OS refuses.
package vm
