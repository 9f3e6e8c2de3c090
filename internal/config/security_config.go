package config

type SecurityLevel int

const (
	SecurityPublic SecurityLevel = iota // No authentication
	SecurityAccess                      // Access token required
)

// Route names as registered on the HTTP router.
const (
	RouteHealth          = "health"
	RouteMetrics         = "metrics"
	RouteDiscover        = "discover"
	RouteCreateActivity  = "create_activity"
	RouteGetActivity     = "get_activity"
	RouteUpdateActivity  = "update_activity"
	RouteDeleteActivity  = "delete_activity"
	RouteCancelActivity  = "cancel_activity"
	RouteLockStatus      = "lock_status"
	RouteJoin            = "join"
	RouteLeave           = "leave"
	RouteRemove          = "remove_participant"
	RouteDemote          = "demote_participant"
	RouteUpdateCapacity  = "update_capacity"
	RouteRoster          = "roster"
	RouteWatch           = "watch"
	RouteListMemberships = "list_memberships"
)

// EndpointSecurityConfig maps route names to their required security level
var EndpointSecurityConfig = map[string]SecurityLevel{
	RouteHealth:   SecurityPublic,
	RouteMetrics:  SecurityPublic,
	RouteDiscover: SecurityPublic,

	RouteGetActivity: SecurityPublic,
	RouteRoster:      SecurityPublic,
	RouteLockStatus:  SecurityPublic,
	RouteWatch:       SecurityPublic,

	RouteCreateActivity:  SecurityAccess,
	RouteUpdateActivity:  SecurityAccess,
	RouteDeleteActivity:  SecurityAccess,
	RouteCancelActivity:  SecurityAccess,
	RouteJoin:            SecurityAccess,
	RouteLeave:           SecurityAccess,
	RouteRemove:          SecurityAccess,
	RouteDemote:          SecurityAccess,
	RouteUpdateCapacity:  SecurityAccess,
	RouteListMemberships: SecurityAccess,
}

// GetSecurityLevel returns the security level for a given route
func GetSecurityLevel(route string) SecurityLevel {
	if level, exists := EndpointSecurityConfig[route]; exists {
		return level
	}
	// Default to highest security for unknown endpoints
	return SecurityAccess
}
