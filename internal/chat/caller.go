package chat

// Caller is the explicit session context of a request. The HTTP layer
// builds it from the request body, the X-Session-ID header and the admin
// token; nothing below it reads cookies or globals.
type Caller struct {
	SessionID string
	Admin     bool
}
