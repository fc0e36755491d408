package transfer

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/fss-project/fss/pkg/identifier"
)

// Registry tracks open sessions by connection identifier. It is safe for
// concurrent use.
type Registry struct {
	// lock guards sessions.
	lock sync.Mutex
	// sessions maps connection identifiers to their open sessions.
	sessions map[string]Session
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{sessions: make(map[string]Session)}
}

// Register registers a session and returns the connection identifier
// generated for it.
func (r *Registry) Register(session Session) (string, error) {
	// Generate a unique identifier for this session.
	id, err := identifier.New(identifier.PrefixConnection)
	if err != nil {
		return "", errors.Wrap(err, "unable to generate connection identifier")
	}

	// Register the session.
	r.lock.Lock()
	r.sessions[id] = session
	r.lock.Unlock()

	// Done.
	return id, nil
}

// Release unregisters and closes the session with the specified identifier.
// Releasing an identifier that isn't registered, including one whose session
// was closed by CloseAll, is a no-op.
func (r *Registry) Release(id string) error {
	// Grab the session and deregister it.
	r.lock.Lock()
	session, ok := r.sessions[id]
	delete(r.sessions, id)
	r.lock.Unlock()

	// Close the session.
	if !ok {
		return nil
	}
	return session.Close()
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.lock.Lock()
	defer r.lock.Unlock()
	return len(r.sessions)
}

// CloseAll unregisters and closes all sessions, returning the number closed
// and the first close error encountered.
func (r *Registry) CloseAll() (int, error) {
	// Extract all sessions.
	r.lock.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]Session)
	r.lock.Unlock()

	// Close them.
	var firstErr error
	for _, session := range sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return len(sessions), firstErr
}
