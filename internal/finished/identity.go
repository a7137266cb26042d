package finished

// Identity is either Anonymous or Authenticated.
type Identity interface {
	identity()
}

type Anonymous struct{}

type Authenticated struct {
	ID          string
	DisplayName string
}

func (Anonymous) identity()     {}
func (Authenticated) identity() {}

// Backend says where the list lives. It is derived from the identity once and
// passed to every adapter call.
type Backend interface {
	backend()
}

type LocalBackend struct{}

type RemoteBackend struct {
	OwnerID string
}

func (LocalBackend) backend()  {}
func (RemoteBackend) backend() {}

// BackendFor maps an identity to its storage backend. A nil identity is
// treated as anonymous.
func BackendFor(id Identity) Backend {
	if auth, ok := id.(Authenticated); ok && auth.ID != "" {
		return RemoteBackend{OwnerID: auth.ID}
	}
	return LocalBackend{}
}

// SameIdentity compares two identities by kind and user id.
func SameIdentity(a, b Identity) bool {
	return BackendFor(a) == BackendFor(b)
}
