package corpus

// Rand is the subset of math/rand/v2 used for sampling.
type Rand interface {
	IntN(n int) int
}

// Pool holds every message text seen while building, in transcript order.
type Pool struct {
	messages []string
}

// NewPool returns a pool over a copy of messages.
func NewPool(messages []string) Pool {
	return Pool{messages: append([]string(nil), messages...)}
}

// Len returns the number of messages.
func (p Pool) Len() int { return len(p.messages) }

// Messages returns a copy of the pool contents.
func (p Pool) Messages() []string {
	return append([]string(nil), p.messages...)
}

// Random returns a uniformly chosen message.
func (p Pool) Random(rng Rand) (string, error) {
	if len(p.messages) == 0 {
		return "", ErrEmptyPool
	}
	return p.messages[rng.IntN(len(p.messages))], nil
}
