package member

// Principal identifies the authenticated caller. The member id is opaque to
// this service; the surrounding identity layer owns its shape.
type Principal struct {
	MemberID string
	Admin    bool
}
