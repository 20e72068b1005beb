package reviewid

// Source tells which branch of the resolution produced an identifier.
type Source string

const (
	SourceDirect   Source = "direct"
	SourceKey      Source = "key"
	SourceLooseKey Source = "key_loose"
)

// Resolution is a resolved identifier and how it was found.
type Resolution struct {
	ID     string
	Source Source
}

// IdentityMap maps match keys to canonical review identifiers. It is never
// mutated after BuildIdentityMap returns, so concurrent readers need no locking.
// A nil *IdentityMap behaves as an empty map.
type IdentityMap struct {
	ids map[string]string
}

// BuildIdentityMap indexes the member's own reviews. Items without an
// identifier or without a usable key are skipped.
func BuildIdentityMap(items []Record) *IdentityMap {
	ids := make(map[string]string, len(items))
	for _, it := range items {
		id, ok := NormalizeID(firstPresent(it, IndexIDKeys...))
		if !ok {
			continue
		}
		bakery, _ := NormalizeID(firstPresent(it, bakeryKeys...))
		key, ok := MatchKey(bakery, firstPresent(it, textKeys...), firstPresent(it, dateKeys...))
		if !ok {
			continue
		}
		ids[key] = id
	}
	return &IdentityMap{ids: ids}
}

// Lookup returns the identifier stored under key.
func (m *IdentityMap) Lookup(key string) (string, bool) {
	if m == nil {
		return "", false
	}
	id, ok := m.ids[key]
	return id, ok && id != ""
}

// Len reports the number of indexed keys.
func (m *IdentityMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ids)
}

// Resolve finds the canonical identifier of r. A direct identifier on the
// record always wins; otherwise the dated key is tried before the undated one.
// routeBakery is used when the record names no bakery of its own.
func (m *IdentityMap) Resolve(r Record, routeBakery any) (Resolution, bool) {
	if id, ok := DirectID(r); ok {
		return Resolution{ID: id, Source: SourceDirect}, true
	}

	bakery := firstPresent(r, bakeryKeys...)
	if bakery == nil {
		bakery = routeBakery
	}
	text := firstPresent(r, textKeys...)

	if key, ok := MatchKey(bakery, text, firstPresent(r, dateKeys...)); ok {
		if id, ok := m.Lookup(key); ok {
			return Resolution{ID: id, Source: SourceKey}, true
		}
	}
	if key, ok := MatchKey(bakery, text, ""); ok {
		if id, ok := m.Lookup(key); ok {
			return Resolution{ID: id, Source: SourceLooseKey}, true
		}
	}
	return Resolution{}, false
}
