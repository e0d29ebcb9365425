package authz

const (
	RoleAdmin     = "admin"
	RoleClient    = "client"
	RoleAnonymous = "anonymous"
)

const (
	ActionRead  = "read"
	ActionWrite = "write"
)

const DomainGlobal = "global"

const (
	ObjectFleetCars     = "fleet.cars"
	ObjectFleetOrders   = "fleet.orders"
	ObjectFleetRoutes   = "fleet.routes"
	ObjectFleetStops    = "fleet.stops"
	ObjectFleetHardware = "fleet.hardware"
	ObjectAdminTenants  = "admin.tenants"
	ObjectAdminAPIKeys  = "admin.api-keys"
)
