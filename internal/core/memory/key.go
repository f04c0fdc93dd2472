package memory

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Key is a symbolic working-memory key. Keys are interned by name so that hot
// lookups compare integers instead of strings.
type Key uint64

var names sync.Map // Key -> string

// K interns name and returns its key.
func K(name string) Key {
	k := Key(xxhash.Sum64String(name))
	names.LoadOrStore(k, name)
	return k
}

// Name returns the interned name of the key, or a hex form for keys that were
// never interned through K.
func (k Key) Name() string {
	if v, ok := names.Load(k); ok {
		return v.(string)
	}
	return fmt.Sprintf("#%016x", uint64(k))
}

func (k Key) String() string { return k.Name() }

// parseKey is the inverse of Name.
func parseKey(s string) (Key, error) {
	if strings.HasPrefix(s, "#") {
		v, err := strconv.ParseUint(s[1:], 16, 64)
		if err != nil {
			return 0, fmt.Errorf("memory: bad raw key %q: %w", s, err)
		}
		return Key(v), nil
	}
	return K(s), nil
}
