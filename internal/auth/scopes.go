package auth

// Scopes attached to access tokens issued by the identity service.
const (
	ScopeActivitiesRead  = "activities:read"
	ScopeActivitiesWrite = "activities:write"
)
