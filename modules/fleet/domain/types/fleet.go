package types

import "fmt"

// CarStatus is the car action status stream value.
type CarStatus string

const (
	CarNormal CarStatus = "NORMAL"
	CarPaused CarStatus = "PAUSED"
)

func ParseCarStatus(s string) (CarStatus, error) {
	switch CarStatus(s) {
	case CarNormal, CarPaused:
		return CarStatus(s), nil
	}
	return "", fmt.Errorf("unknown car status %q", s)
}

// OrderStatus is the order lifecycle stream value.
type OrderStatus string

const (
	OrderToAccept   OrderStatus = "TO_ACCEPT"
	OrderAccepted   OrderStatus = "ACCEPTED"
	OrderInProgress OrderStatus = "IN_PROGRESS"
	OrderDone       OrderStatus = "DONE"
	OrderCanceled   OrderStatus = "CANCELED"
)

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch OrderStatus(s) {
	case OrderToAccept, OrderAccepted, OrderInProgress, OrderDone, OrderCanceled:
		return OrderStatus(s), nil
	}
	return "", fmt.Errorf("unknown order status %q", s)
}

// Terminal reports whether no further transitions are accepted after s.
func (s OrderStatus) Terminal() bool {
	return s == OrderDone || s == OrderCanceled
}

type Tenant struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt int64  `json:"created_at"`
}

// APIKey is a bearer credential. Admin keys are unrestricted; otherwise
// Tenants lists the tenant names the key grants access to.
type APIKey struct {
	ID        int64    `json:"id"`
	Token     string   `json:"token"`
	Label     string   `json:"label"`
	Admin     bool     `json:"admin"`
	Tenants   []string `json:"tenants"`
	CreatedAt int64    `json:"created_at"`
}

type Hardware struct {
	ID    int64  `json:"id"`
	IMEI  string `json:"imei"`
	Phone string `json:"phone"`
}

type Route struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type Stop struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	RouteID  int64   `json:"route_id"`
	Position int64   `json:"position"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
}

type Car struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	Plate      string `json:"plate"`
	HardwareID int64  `json:"hardware_id"`
	RouteID    int64  `json:"route_id"`
}

// Order is a transport job. CompletedAt is zero while the order is active and
// carries the terminal state's timestamp once the order is DONE or CANCELED.
type Order struct {
	ID          int64  `json:"id"`
	CarID       int64  `json:"car_id"`
	RouteID     int64  `json:"route_id"`
	Label       string `json:"label"`
	Timestamp   int64  `json:"timestamp"`
	CompletedAt int64  `json:"completed_at"`
}

// Active reports whether the order has not reached a terminal state.
func (o Order) Active() bool { return o.CompletedAt == 0 }

type CarState struct {
	ID        int64     `json:"id"`
	CarID     int64     `json:"car_id"`
	Status    CarStatus `json:"status"`
	Timestamp int64     `json:"timestamp"`
}

type OrderState struct {
	ID        int64       `json:"id"`
	OrderID   int64       `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Timestamp int64       `json:"timestamp"`
}
