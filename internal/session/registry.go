package session

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/haven-health/consult-signaling/internal/event"
)

// Role breaks negotiation symmetry between the two members of an active
// room. The first entrant becomes the initiator once a peer arrives.
type Role string

const (
	RoleInitiator Role = "initiator"
	RoleResponder Role = "responder"
)

// State of a room's rendezvous. Rooms are created on first join and
// deleted on close, so "empty" and "closed" never appear in the registry.
type State string

const (
	StateOneJoined State = "one_joined"
	StateActive    State = "active"
)

// Participant is a room member: a stable identity bound to its current
// transport handle. The handle may be swapped on reconnect; the role,
// once assigned, never changes.
type Participant struct {
	Identity string
	Handle   event.Sink
	Role     Role
}

// Room is the rendezvous context for one call. At most two members,
// insertion order significant. All fields behind mu except ID.
type Room struct {
	ID string

	mu             sync.Mutex
	members        []*Participant
	state          State
	createdAt      time.Time
	lastActivityAt time.Time
	idleTimer      *time.Timer
	closed         bool
}

func (r *Room) member(identity string) *Participant {
	for _, p := range r.members {
		if p.Identity == identity {
			return p
		}
	}
	return nil
}

// other returns the member that is not identity, if any.
func (r *Room) other(identity string) *Participant {
	for _, p := range r.members {
		if p.Identity != identity {
			return p
		}
	}
	return nil
}

const registryShards = 16

type registryShard struct {
	mu    sync.Mutex
	rooms map[string]*Room
}

// Registry is the in-memory room table, sharded by room id so unrelated
// rooms never contend. Constructed once at process start; no persistence,
// lifetime is process uptime.
type Registry struct {
	shards [registryShards]registryShard

	// identity -> roomID, for the disconnect path. Each identity occupies
	// at most one room at a time.
	occMu     sync.Mutex
	occupancy map[string]string
}

func NewRegistry() *Registry {
	reg := &Registry{occupancy: make(map[string]string)}
	for i := range reg.shards {
		reg.shards[i].rooms = make(map[string]*Room)
	}
	return reg
}

func (reg *Registry) shard(roomID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(roomID))
	return &reg.shards[h.Sum32()%registryShards]
}

// getOrCreate returns the room for roomID, creating it if absent.
// The second result reports whether the room was created by this call.
func (reg *Registry) getOrCreate(roomID string) (*Room, bool) {
	s := reg.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[roomID]; ok {
		return room, false
	}
	now := time.Now()
	room := &Room{
		ID:             roomID,
		state:          StateOneJoined,
		createdAt:      now,
		lastActivityAt: now,
	}
	s.rooms[roomID] = room
	return room, true
}

func (reg *Registry) get(roomID string) (*Room, bool) {
	s := reg.shard(roomID)
	s.mu.Lock()
	defer s.mu.Unlock()
	room, ok := s.rooms[roomID]
	return room, ok
}

// remove deletes the room from its shard. The caller must already have
// marked the room closed under its own lock.
func (reg *Registry) remove(roomID string) {
	s := reg.shard(roomID)
	s.mu.Lock()
	delete(s.rooms, roomID)
	s.mu.Unlock()
}

func (reg *Registry) setOccupancy(identity, roomID string) {
	reg.occMu.Lock()
	reg.occupancy[identity] = roomID
	reg.occMu.Unlock()
}

func (reg *Registry) clearOccupancy(identity, roomID string) {
	reg.occMu.Lock()
	if reg.occupancy[identity] == roomID {
		delete(reg.occupancy, identity)
	}
	reg.occMu.Unlock()
}

func (reg *Registry) occupiedRoom(identity string) (string, bool) {
	reg.occMu.Lock()
	defer reg.occMu.Unlock()
	roomID, ok := reg.occupancy[identity]
	return roomID, ok
}
