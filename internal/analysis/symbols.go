package analysis

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/ianlancetaylor/demangle"

	"stackframe/internal/elfx"
)

// Symbol is a function symbol with its demangled name.
type Symbol struct {
	elfx.Func
	Demangled string
}

type symbolCache struct {
	mu       sync.RWMutex
	demangle map[string]string
	hits     map[string]int
}

var cache = &symbolCache{
	demangle: make(map[string]string),
	hits:     make(map[string]int),
}

// CachedDemangle demangles a C++ or Rust symbol, returning it unchanged when
// it is not mangled. It is safe for concurrent use.
func CachedDemangle(mangled string) string {
	cache.mu.RLock()
	d, ok := cache.demangle[mangled]
	cache.mu.RUnlock()
	if ok {
		cache.mu.Lock()
		cache.hits[mangled]++
		cache.mu.Unlock()
		return d
	}

	d = demangle.Filter(mangled, demangle.NoClones)

	cache.mu.Lock()
	cache.demangle[mangled] = d
	cache.hits[mangled] = 1
	cache.mu.Unlock()
	return d
}

// DemangleCacheStats returns the number of cached names, how many lookups
// hit the cache and the five most requested names.
func DemangleCacheStats() (total int, hits int, top []string) {
	cache.mu.RLock()
	defer cache.mu.RUnlock()

	type hit struct {
		symbol string
		count  int
	}
	var all []hit
	for sym, n := range cache.hits {
		all = append(all, hit{sym, n})
		hits += n
	}
	slices.SortFunc(all, func(a, b hit) int {
		if c := cmp.Compare(b.count, a.count); c != 0 {
			return c
		}
		return strings.Compare(a.symbol, b.symbol)
	})
	for i := 0; i < 5 && i < len(all); i++ {
		top = append(top, fmt.Sprintf("%s (%d hits)", all[i].symbol, all[i].count))
	}
	return len(cache.demangle), hits - len(cache.demangle), top
}

// Functions lists the functions of im whose raw or demangled name contains
// filter, skipping compiler-internal "__" symbols unless the filter asks
// for them.
func Functions(im *elfx.Image, filter string) []Symbol {
	var out []Symbol
	for _, fn := range im.Funcs {
		if strings.HasPrefix(fn.Name, "__") && !strings.HasPrefix(filter, "__") {
			continue
		}
		d := CachedDemangle(fn.Name)
		if filter != "" && !strings.Contains(fn.Name, filter) && !strings.Contains(d, filter) {
			continue
		}
		out = append(out, Symbol{Func: fn, Demangled: d})
	}
	return out
}
