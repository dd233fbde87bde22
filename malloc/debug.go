// +build debug

package malloc

import "runtime/debug"

import "github.com/bnclabs/vmalloc/lib"
import "github.com/bnclabs/vmalloc/log"

// debugBuild gates the guard-byte checking in BoundsChecked; in the default
// build production.go's mirror of this file makes that branch dead code and
// turns stampGuard, checkGuard and assertf into no-ops, the same split the
// teacher used for pool-block initialisation in debug.go/production.go.
// assertf has no call site in this package.
const debugBuild = true

var guardPattern = []byte{0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF}

func stampGuard(addr uintptr, n int64) {
	dst := sliceFromAddr(addr, n)
	for i := range dst {
		dst[i] = guardPattern[i%len(guardPattern)]
	}
}

func checkGuard(addr uintptr, n int64) bool {
	dst := sliceFromAddr(addr, n)
	for i, b := range dst {
		if b != guardPattern[i%len(guardPattern)] {
			return false
		}
	}
	return true
}

func assertf(cond bool, format string, args ...interface{}) {
	if !cond {
		log.Fatalf("malloc: assertion failed: "+format+"\n", args...)
		log.Errorf("\n%s", lib.GetStacktrace(2, debug.Stack()))
	}
}
