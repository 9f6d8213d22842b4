package session

import (
	"maps"
	"slices"
)

// Data is the session payload: namespace name to key/value mapping.
// A namespace only exists once a key has been written into it.
type Data map[string]map[string]any

// Set stores value under key in namespace, creating the namespace if needed.
func (d Data) Set(namespace, key string, value any) {
	ns, ok := d[namespace]
	if !ok {
		ns = make(map[string]any)
		d[namespace] = ns
	}
	ns[key] = value
}

// Get returns the value under key in namespace, or nil when absent.
func (d Data) Get(namespace, key string) any {
	return d[namespace][key]
}

// Exists reports whether namespace exists and holds key.
func (d Data) Exists(namespace, key string) bool {
	ns, ok := d[namespace]
	if !ok {
		return false
	}
	_, ok = ns[key]
	return ok
}

// Remove deletes key from namespace. Absent keys are ignored.
func (d Data) Remove(namespace, key string) {
	if ns, ok := d[namespace]; ok {
		delete(ns, key)
	}
}

// RemoveNamespace deletes the whole namespace. Absent namespaces are ignored.
func (d Data) RemoveNamespace(namespace string) {
	delete(d, namespace)
}

// Namespaces returns the namespace names in sorted order.
func (d Data) Namespaces() []string {
	return slices.Sorted(maps.Keys(d))
}

// Keys returns the keys of namespace in sorted order.
func (d Data) Keys(namespace string) []string {
	return slices.Sorted(maps.Keys(d[namespace]))
}
