package services

// EvictionScope selects what a bounded stream counts against: the parent
// entity (default) or the whole tenant.
type EvictionScope int

const (
	EvictPerParent EvictionScope = iota
	EvictPerTenant
)

// Limits carries the configured stream bounds. Zero values mean unbounded.
type Limits struct {
	MaxCarStates      int
	MaxOrderStates    int
	MaxActiveOrders   int
	MaxInactiveOrders int
	CarStateEviction  EvictionScope
}
