package videoengine

import "sync"

// channelRegistry holds the live channels capture fan-out can reach.
// Channels keep only their key and a pointer to the registry, never to the
// engine facade.
type channelRegistry struct {
	mu       sync.Mutex
	next     uint64
	channels map[uint64]*Channel
	order    []uint64
}

func newChannelRegistry() *channelRegistry {
	return &channelRegistry{channels: make(map[uint64]*Channel)}
}

func (r *channelRegistry) register(c *Channel) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.next++
	key := r.next
	r.channels[key] = c
	r.order = append(r.order, key)
	channelsLive.Inc()
	return key
}

func (r *channelRegistry) unregister(key uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.channels[key]; !ok {
		return
	}
	delete(r.channels, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	channelsLive.Dec()
}

// withLock runs fn while no fan-out is in progress.
func (r *channelRegistry) withLock(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

// forEach calls fn for every registered channel in registration order,
// holding the registry lock for the whole walk.
func (r *channelRegistry) forEach(fn func(*Channel)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range r.order {
		fn(r.channels[key])
	}
}

func (r *channelRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.channels)
}

func (r *channelRegistry) snapshot() []*Channel {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Channel, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.channels[key])
	}
	return out
}
