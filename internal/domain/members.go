package domain

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

type Role string

const (
	RoleHost   Role = "host"
	RoleViewer Role = "viewer"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleHost, RoleViewer:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

type Status string

const (
	StatusConnected         Status = "connected"
	StatusDisconnectedGrace Status = "disconnected_grace"
	StatusEvicted           Status = "evicted"
)

type Member struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Role           Role      `json:"role"`
	Status         Status    `json:"status"`
	LastHeartbeat  time.Time `json:"last_heartbeat"`
	JoinedAt       time.Time `json:"joined_at"`
	DisconnectedAt time.Time `json:"-"`
	ClientSeq      ClientSeq `json:"-"`
}

// ClientSeq is the last client sequence token accepted from a member. It survives
// reconnects and is dropped with the member. The zero value has accepted nothing, so the
// first token is fresh whatever its value.
type ClientSeq struct {
	last uint64
	seen bool
}

func (c ClientSeq) Stale(seq uint64) bool {
	return c.seen && seq <= c.last
}

func (c *ClientSeq) Accept(seq uint64) {
	c.last = seq
	c.seen = true
}

// Last returns the last accepted token and whether there is one.
func (c ClientSeq) Last() (uint64, bool) {
	return c.last, c.seen
}

// Members keeps room members in join order. A non-positive limit disables the capacity check.
type Members struct {
	list  []*Member
	limit int
}

func NewMembers(limit int) *Members {
	return &Members{
		list:  make([]*Member, 0),
		limit: limit,
	}
}

func (m Members) Length() int {
	return len(m.list)
}

func (m Members) Connected() int {
	return lo.CountBy(m.list, func(member *Member) bool {
		return member.Status == StatusConnected
	})
}

// AsList returns copies of the members in join order.
func (m Members) AsList() []Member {
	return lo.Map(m.list, func(member *Member, _ int) Member {
		return *member
	})
}

func (m Members) GetByID(id string) (*Member, error) {
	index := m.indexOf(id)
	if index < 0 {
		return nil, ErrMemberNotFound
	}

	return m.list[index], nil
}

func (m *Members) Add(member *Member) error {
	if m.indexOf(member.ID) >= 0 {
		return ErrMemberAlreadyExists
	}

	if m.limit > 0 && m.Length() >= m.limit {
		return ErrMembersLimitReached
	}

	m.list = append(m.list, member)
	return nil
}

func (m *Members) RemoveByID(id string) (Member, error) {
	index := m.indexOf(id)
	if index < 0 {
		return Member{}, ErrMemberNotFound
	}

	member := m.list[index]
	m.list = slices.Delete(m.list, index, index+1)
	return *member, nil
}

func (m Members) indexOf(id string) int {
	return slices.IndexFunc(m.list, func(member *Member) bool {
		return member.ID == id
	})
}
