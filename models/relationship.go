package models

import "sort"

// Relationship is the per-user record of friendship, pending and block edges.
// Each set is kept sorted and free of duplicates.
type Relationship struct {
	UserID           string   `json:"userId"`
	Friends          []string `json:"friends"`
	RequestsSent     []string `json:"requestsSent"`
	RequestsReceived []string `json:"requestsReceived"`
	Blocked          []string `json:"blocked"`
}

// NewRelationship returns the empty record a user has before any transition.
func NewRelationship(userID string) *Relationship {
	return &Relationship{
		UserID:           userID,
		Friends:          []string{},
		RequestsSent:     []string{},
		RequestsReceived: []string{},
		Blocked:          []string{},
	}
}

// Edge is one record's view of a single peer: which of its sets hold the peer.
type Edge struct {
	Friend   bool
	Sent     bool
	Received bool
	Blocked  bool
}

// Edge extracts the record's edge towards peer.
func (r *Relationship) Edge(peer string) Edge {
	return Edge{
		Friend:   containsID(r.Friends, peer),
		Sent:     containsID(r.RequestsSent, peer),
		Received: containsID(r.RequestsReceived, peer),
		Blocked:  containsID(r.Blocked, peer),
	}
}

// SetEdge rewrites the record's membership of peer to match e.
func (r *Relationship) SetEdge(peer string, e Edge) {
	r.Friends = setID(r.Friends, peer, e.Friend)
	r.RequestsSent = setID(r.RequestsSent, peer, e.Sent)
	r.RequestsReceived = setID(r.RequestsReceived, peer, e.Received)
	r.Blocked = setID(r.Blocked, peer, e.Blocked)
}

func (r *Relationship) IsFriend(peer string) bool   { return containsID(r.Friends, peer) }
func (r *Relationship) HasBlocked(peer string) bool { return containsID(r.Blocked, peer) }

// Clone returns a deep copy so callers can mutate without aliasing store state.
func (r *Relationship) Clone() *Relationship {
	return &Relationship{
		UserID:           r.UserID,
		Friends:          append([]string{}, r.Friends...),
		RequestsSent:     append([]string{}, r.RequestsSent...),
		RequestsReceived: append([]string{}, r.RequestsReceived...),
		Blocked:          append([]string{}, r.Blocked...),
	}
}

// Normalize sorts and de-duplicates every set, replacing nil with empty.
func (r *Relationship) Normalize() {
	r.Friends = normalizeIDs(r.Friends)
	r.RequestsSent = normalizeIDs(r.RequestsSent)
	r.RequestsReceived = normalizeIDs(r.RequestsReceived)
	r.Blocked = normalizeIDs(r.Blocked)
}

func containsID(ids []string, id string) bool {
	i := sort.SearchStrings(ids, id)
	return i < len(ids) && ids[i] == id
}

func setID(ids []string, id string, present bool) []string {
	i := sort.SearchStrings(ids, id)
	found := i < len(ids) && ids[i] == id
	switch {
	case present && !found:
		ids = append(ids, "")
		copy(ids[i+1:], ids[i:])
		ids[i] = id
	case !present && found:
		ids = append(ids[:i], ids[i+1:]...)
	}
	return ids
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
