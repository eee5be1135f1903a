package room

import (
	"sync"

	"github.com/google/uuid"

	"github.com/sharetube/syncroom/internal/domain"
)

const (
	codeLength   = 6
	codeAttempts = 10
)

var codeLetters = []byte("ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789")

type iGenerator interface {
	GenerateRandomString(length int) string
}

// Registry resolves room ids and join codes to live sessions and tracks which room each
// user belongs to.
type Registry struct {
	mu          sync.RWMutex
	rooms       map[string]*Session
	codes       map[string]string
	memberRooms map[string]string
	generator   iGenerator
}

func NewRegistry(generator iGenerator) *Registry {
	return &Registry{
		rooms:       make(map[string]*Session),
		codes:       make(map[string]string),
		memberRooms: make(map[string]string),
		generator:   generator,
	}
}

// Register reserves a new id and a unique join code and stores the session built by build.
// The session is not started.
func (r *Registry) Register(build func(id, code string) *Session) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code := ""
	for range codeAttempts {
		candidate := domain.NormalizeCode(r.generator.GenerateRandomString(codeLength))
		if _, taken := r.codes[candidate]; !taken {
			code = candidate
			break
		}
	}
	if code == "" {
		return nil, domain.ErrCodeExhausted
	}

	id := uuid.NewString()
	s := build(id, code)
	r.rooms[id] = s
	r.codes[code] = id

	return s, nil
}

// Lookup resolves ref as a room id first and as a join code second.
func (r *Registry) Lookup(ref string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.rooms[ref]
	if !ok {
		var id string
		if id, ok = r.codes[domain.NormalizeCode(ref)]; ok {
			s, ok = r.rooms[id]
		}
	}

	if !ok || s.Closed() {
		return nil, domain.ErrRoomNotFound
	}

	return s, nil
}

// Retire drops s from the registry. Calling it again is a no-op.
func (r *Registry) Retire(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.rooms[s.ID()]; ok && current == s {
		delete(r.rooms, s.ID())
	}
	if id, ok := r.codes[s.Code()]; ok && id == s.ID() {
		delete(r.codes, s.Code())
	}
}

// List returns the resolvable sessions.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]*Session, 0, len(r.rooms))
	for _, s := range r.rooms {
		if !s.Closed() {
			list = append(list, s)
		}
	}

	return list
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms)
}

// BindMember records userID as a member of roomID and returns the room the user belonged
// to before, if it differs.
func (r *Registry) BindMember(userID, roomID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.memberRooms[userID]
	r.memberRooms[userID] = roomID
	if prev == roomID {
		return ""
	}

	return prev
}

func (r *Registry) UnbindMember(userID, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.memberRooms[userID] == roomID {
		delete(r.memberRooms, userID)
	}
}

func (r *Registry) MemberRoom(userID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roomID, ok := r.memberRooms[userID]
	return roomID, ok
}
