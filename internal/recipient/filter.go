package recipient

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Predicate is a single condition on the users table. It renders itself as a
// SQL fragment using placeholders starting at arg.
type Predicate interface {
	fragment(arg int) (string, []any)
}

type byID struct{ id int64 }

func (p byID) fragment(arg int) (string, []any) {
	return fmt.Sprintf("id = $%d", arg), []any{p.id}
}

type inUnits struct{ units []string }

func (p inUnits) fragment(arg int) (string, []any) {
	if len(p.units) == 1 {
		return fmt.Sprintf("unit = $%d", arg), []any{p.units[0]}
	}
	return fmt.Sprintf("unit = ANY($%d)", arg), []any{pq.Array(p.units)}
}

type roleIn struct{ roles []string }

func (p roleIn) fragment(arg int) (string, []any) {
	return fmt.Sprintf("role = ANY($%d)", arg), []any{pq.Array(p.roles)}
}

type reachable struct{}

func (reachable) fragment(int) (string, []any) {
	return "(COALESCE(fcm_token, '') <> '' OR COALESCE(expo_token, '') <> '')", nil
}

type activeWithin struct{ window time.Duration }

func (p activeWithin) fragment(arg int) (string, []any) {
	return fmt.Sprintf("last_active > NOW() - make_interval(secs => $%d)", arg), []any{p.window.Seconds()}
}

type excludeIDs struct{ ids []int64 }

func (p excludeIDs) fragment(arg int) (string, []any) {
	return fmt.Sprintf("NOT (id = ANY($%d))", arg), []any{pq.Array(p.ids)}
}

// ByID matches exactly one user id.
func ByID(id int64) Predicate { return byID{id: id} }

// InUnit matches members of a single unit.
func InUnit(unit string) Predicate { return inUnits{units: []string{unit}} }

// InUnits matches members of any of the given units.
func InUnits(units ...string) Predicate { return inUnits{units: units} }

// RoleIn matches users holding any of the given roles.
func RoleIn(roles ...Role) Predicate {
	names := make([]string, len(roles))
	for i, r := range roles {
		names[i] = string(r)
	}
	return roleIn{roles: names}
}

// Reachable matches users with at least one push token.
func Reachable() Predicate { return reachable{} }

// ActiveWithin matches users seen within the window.
func ActiveWithin(window time.Duration) Predicate { return activeWithin{window: window} }

// ExcludeIDs removes the given user ids from the match.
func ExcludeIDs(ids ...int64) Predicate { return excludeIDs{ids: ids} }

// Filter is a conjunction of predicates
type Filter struct {
	predicates []Predicate
}

// NewFilter creates a filter from predicates
func NewFilter(predicates ...Predicate) Filter {
	return Filter{}.And(predicates...)
}

// And returns a copy of the filter with extra predicates. Nil predicates and
// empty id/unit/role sets are skipped.
func (f Filter) And(predicates ...Predicate) Filter {
	out := Filter{predicates: append([]Predicate(nil), f.predicates...)}
	for _, p := range predicates {
		switch v := p.(type) {
		case nil:
			continue
		case excludeIDs:
			if len(v.ids) == 0 {
				continue
			}
		case inUnits:
			if len(v.units) == 0 {
				continue
			}
		case roleIn:
			if len(v.roles) == 0 {
				continue
			}
		}
		out.predicates = append(out.predicates, p)
	}
	return out
}

// IsEmpty reports whether the filter would match every row
func (f Filter) IsEmpty() bool {
	return len(f.predicates) == 0
}

// SQL renders the filter as a WHERE body joined with AND, numbering
// placeholders from startArg.
func (f Filter) SQL(startArg int) (string, []any) {
	parts := make([]string, 0, len(f.predicates))
	var args []any
	arg := startArg
	for _, p := range f.predicates {
		frag, fragArgs := p.fragment(arg)
		parts = append(parts, frag)
		args = append(args, fragArgs...)
		arg += len(fragArgs)
	}
	return strings.Join(parts, " AND "), args
}

// Policy controls the predicates added to broad (role or unit) targeting
type Policy struct {
	// RecencyWindow drops users not seen within the window. Zero disables it.
	RecencyWindow time.Duration
}

// Broad builds a filter for role/unit targeting: reachable recipients, and
// recently active ones when the policy asks for it.
func (p Policy) Broad(predicates ...Predicate) Filter {
	f := NewFilter(predicates...).And(Reachable())
	if p.RecencyWindow > 0 {
		f = f.And(ActiveWithin(p.RecencyWindow))
	}
	return f
}
