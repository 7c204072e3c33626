package rbac

import "strings"

// Rule maps a protected endpoint name to the groups allowed to invoke it.
type Rule struct {
	ID            int64
	Module        string
	EndpointName  string
	AllowedGroups []string
}

// AllowedGroupsCSV renders the allow-list in its stored form.
func (r Rule) AllowedGroupsCSV() string {
	return strings.Join(r.AllowedGroups, ",")
}

// RuleInput describes a rule to create or upsert. AllowedGroups is a comma separated list.
type RuleInput struct {
	Module        string `json:"module" validate:"required,max=100"`
	EndpointName  string `json:"endpoint_name" validate:"required,max=200"`
	AllowedGroups string `json:"allowed_groups" validate:"max=2000"`
}

// RuleUpdate carries a partial update; nil fields are left unchanged.
type RuleUpdate struct {
	Module        *string `json:"module,omitempty" validate:"omitempty,min=1,max=100"`
	EndpointName  *string `json:"endpoint_name,omitempty" validate:"omitempty,min=1,max=200"`
	AllowedGroups *string `json:"allowed_groups,omitempty" validate:"omitempty,max=2000"`
}

// ListFilter narrows List results. Empty fields do not filter.
type ListFilter struct {
	Module string
	Search string
}

// SplitGroups trims entries, drops blanks and duplicates, and keeps first-seen order.
func SplitGroups(csv string) []string {
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(csv, ",") {
		g := strings.TrimSpace(part)
		if g == "" {
			continue
		}
		if _, ok := seen[g]; ok {
			continue
		}
		seen[g] = struct{}{}
		out = append(out, g)
	}
	return out
}

// NormalizeGroups is SplitGroups rendered back to CSV. It is idempotent.
func NormalizeGroups(csv string) string {
	return strings.Join(SplitGroups(csv), ",")
}
