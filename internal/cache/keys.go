package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
)

// KeyGenerator builds the deterministic cache keys used by the action cache.
type KeyGenerator struct{}

func (KeyGenerator) DatabaseQuery(name string) string { return "db:query:" + name }
func (KeyGenerator) NoteMetadata(id string) string    { return "note:metadata:" + id }
func (KeyGenerator) NoteStatus(id string) string      { return "note:status:" + id }

// Params hashes an arbitrary set of query parameters to a stable 64-hex-char
// key suffix, for parameterized queries whose cache key can't be written by
// hand.
func (KeyGenerator) Params(name string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprint(h, name)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%s", k, params[k])
	}
	return "db:query:" + hex.EncodeToString(h.Sum(nil))
}
