package pkg

type Map[K comparable, V any] map[K]V

func (m Map[K, V]) Get(key K) V {
	return m[key]
}

func (m Map[K, V]) Set(key K, value V) {
	m[key] = value
}

func (m Map[K, V]) Has(key K) bool {
	_, ok := m[key]
	return ok
}

func (m Map[K, V]) Delete(key K) {
	delete(m, key)
}

func (m Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Merge copies every entry of other over m. Keys missing from other are kept.
func (m Map[K, V]) Merge(other map[K]V) Map[K, V] {
	for k, v := range other {
		m[k] = v
	}
	return m
}

// Clone returns a shallow copy. A nil map clones to an empty one.
func (m Map[K, V]) Clone() Map[K, V] {
	c := make(Map[K, V], len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
