package rbac

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeGroups(t *testing.T) {
	cases := map[string]string{
		"admin, admin ,staff":          "admin,staff",
		"":                             "",
		" , ,":                         "",
		"staff":                        "staff",
		"officer,staff, officer,admin": "officer,staff,admin",
		"Staff,staff":                  "Staff,staff",
	}
	for in, want := range cases {
		got := NormalizeGroups(in)
		assert.Equal(t, want, got, "input %q", in)
		assert.Equal(t, got, NormalizeGroups(got), "re-normalizing %q", in)
	}
}

func TestSplitGroupsKeepsFirstSeenOrder(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, SplitGroups("b,a,b, c ,a"))
	assert.Nil(t, SplitGroups(" "))
}
