package query

// Role tags a structured term extracted from conversation.
type Role string

const (
	RolePest   Role = "pest"
	RolePlant  Role = "plant"
	RoleDamage Role = "damage"
	RoleRemedy Role = "remedy"
)

// roleOrder fixes the concatenation order of roles inside one refinement string.
var roleOrder = map[Role]int{
	RolePest:   0,
	RolePlant:  1,
	RoleDamage: 2,
	RoleRemedy: 3,
}

// Rank returns the fixed position of a role within a refinement string.
// Unknown roles sort last.
func (r Role) Rank() int {
	if rank, ok := roleOrder[r]; ok {
		return rank
	}
	return len(roleOrder)
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	_, ok := roleOrder[r]
	return ok
}

// Term is a single role-tagged entity value. EntityType is the numeric
// entity-type rank used for ordering terms sharing a role.
type Term struct {
	Role       Role
	EntityType int
	Value      string
}

// Group is one coherent set of terms extracted together, e.g. from one
// user utterance.
type Group []Term

// Query is the ephemeral per-turn request unit.
type Query struct {
	Text             string
	DamageText       string
	Groups           []Group
	PriorRefinements []string
	Debug            bool
}
