package cart

import "sync"

type session struct {
	mu   sync.Mutex
	cart *Cart
}

// Sessions keeps one cart per signed-in customer for the lifetime of the
// process. Each cart is guarded by its own lock so a slow checkout for one
// customer never blocks another.
type Sessions struct {
	mu       sync.Mutex
	sessions map[int64]*session
}

func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[int64]*session)}
}

func (s *Sessions) get(customerID int64) *session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[customerID]
	if !ok {
		sess = &session{cart: New(customerID)}
		s.sessions[customerID] = sess
	}
	return sess
}

// With runs fn with exclusive access to the customer's cart, creating an
// empty one on first use.
func (s *Sessions) With(customerID int64, fn func(c *Cart) error) error {
	sess := s.get(customerID)
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return fn(sess.cart)
}

// Drop forgets the customer's cart, as on logout.
func (s *Sessions) Drop(customerID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, customerID)
}
