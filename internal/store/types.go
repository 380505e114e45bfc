package store

// RegistryItem represents a single machine record from the upstream machine registry.
type RegistryItem struct {
	ID      string `json:"id"`
	Code    string `json:"code"`
	Name    string `json:"name"`
	Section string `json:"section"`
}
