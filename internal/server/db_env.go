package server

import (
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/fleetgrid/fleetgrid/modules/fleet/services"
)

func dbDSNFromEnv() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}

	host := getenvDefault("DB_HOST", "127.0.0.1")
	port := getenvDefault("DB_PORT", "5432")
	user := getenvDefault("DB_USER", "fleet")
	pass := getenvDefault("DB_PASSWORD", "fleet")
	name := getenvDefault("DB_NAME", "fleetgrid")
	sslmode := getenvDefault("DB_SSLMODE", "disable")

	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(user, pass),
		Host:   host + ":" + port,
		Path:   "/" + name,
	}
	q := u.Query()
	q.Set("sslmode", sslmode)
	u.RawQuery = q.Encode()
	return u.String()
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func limitsFromEnv() services.Limits {
	limits := services.Limits{
		MaxCarStates:      getenvInt("FLEET_MAX_CAR_STATES", 100),
		MaxOrderStates:    getenvInt("FLEET_MAX_ORDER_STATES", 100),
		MaxActiveOrders:   getenvInt("FLEET_MAX_ACTIVE_ORDERS", 10),
		MaxInactiveOrders: getenvInt("FLEET_MAX_INACTIVE_ORDERS", 100),
	}
	if getenvDefault("FLEET_CAR_STATE_EVICTION", "per-car") == "per-tenant" {
		limits.CarStateEviction = services.EvictPerTenant
	}
	return limits
}

func waitTimeoutFromEnv() time.Duration {
	return time.Duration(getenvInt("FLEET_WAIT_TIMEOUT_MS", 30000)) * time.Millisecond
}
