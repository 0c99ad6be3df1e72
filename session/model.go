package session

// Binding ties an identity to one (origin, client) pair. There is at most
// one live binding per (identity, origin, client) tuple; re-issuing a
// credential from the same context refreshes LastActivityAt in place
// instead of creating a duplicate.
type Binding struct {
	BindingID  string
	IdentityID string
	Username   string
	Role       string
	Origin     string
	Client     string

	CreatedAt      int64
	LastActivityAt int64
}
