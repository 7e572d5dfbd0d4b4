// Package identity turns an unordered set of commander card identities into
// a stable, order-independent key.
package identity

import (
	"sort"
	"strings"
)

// separator joins card identities inside a key
const separator = "+"

// Key is the canonical commander identity. The zero value means no
// commanders.
type Key string

// Canonicalize sorts and deduplicates ids and packs them into a Key.
// Blank ids and ids containing the separator are ignored. Two inputs yield
// the same Key iff they are equal as sets.
func Canonicalize(ids []string) Key {
	seen := make(map[string]struct{}, len(ids))
	unique := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || strings.Contains(id, separator) {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	sort.Strings(unique)
	return Key(strings.Join(unique, separator))
}

// ParseKey restores a Key read back from storage. The input is
// re-canonicalized so hand-edited or legacy keys still compare equal.
func ParseKey(s string) Key {
	return Canonicalize(strings.Split(s, separator))
}

// IDs returns the sorted card identities of the key
func (k Key) IDs() []string {
	if k == "" {
		return nil
	}
	return strings.Split(string(k), separator)
}

// Size is the number of commander cards in the key
func (k Key) Size() int {
	if k == "" {
		return 0
	}
	return strings.Count(string(k), separator) + 1
}

func (k Key) IsZero() bool {
	return k == ""
}

func (k Key) String() string {
	return string(k)
}
