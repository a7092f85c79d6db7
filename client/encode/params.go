// Package encode turns typed tracking events into the ordered parameter mappings and the
// delivery URLs the collection endpoint understands.
package encode

import (
	"sort"
	"strconv"
)

// Params is a string mapping that remembers insertion order. Setting a key that already
// exists replaces the value but keeps the key at its original position.
type Params struct {
	keys   []string
	values map[string]string
}

func NewParams() *Params {
	return &Params{values: make(map[string]string)}
}

// ParamsFromMap builds Params from an unordered map, ordering keys lexically so that the
// wire payload is deterministic.
func ParamsFromMap(m map[string]string) *Params {
	p := NewParams()
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		p.Set(k, m[k])
	}
	return p
}

func (p *Params) Set(key, value string) {
	if p.values == nil {
		p.values = make(map[string]string)
	}
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = value
}

func (p *Params) Get(key string) (string, bool) {
	if p == nil {
		return "", false
	}
	v, ok := p.values[key]
	return v, ok
}

// PutAll copies every entry of other into p. On key collisions other wins.
func (p *Params) PutAll(other *Params) {
	if other == nil {
		return
	}
	for _, k := range other.keys {
		p.Set(k, other.values[k])
	}
}

func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.keys)
}

func (p *Params) Keys() []string {
	if p == nil {
		return nil
	}
	return append([]string(nil), p.keys...)
}

// Each calls fn for every entry in insertion order.
func (p *Params) Each(fn func(key, value string)) {
	if p == nil {
		return
	}
	for _, k := range p.keys {
		fn(k, p.values[k])
	}
}

func (p *Params) ToMap() map[string]string {
	m := make(map[string]string, p.Len())
	p.Each(func(k, v string) { m[k] = v })
	return m
}

// putIndexed writes prefix<N> for every entry of m in ascending index order.
func putIndexed(p *Params, prefix string, m map[int]string) {
	indexes := make([]int, 0, len(m))
	for i := range m {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	for _, i := range indexes {
		p.Set(prefix+strconv.Itoa(i), m[i])
	}
}

func putIfSet(p *Params, key, value string) {
	if value != "" {
		p.Set(key, value)
	}
}
