package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCan(t *testing.T) {
	assert.True(t, Can(RoleAdmin, CapReview))
	assert.True(t, Can(RoleInstructor, CapReview))
	assert.False(t, Can(RoleStudent, CapReview))
	assert.False(t, Can(RoleStudent, CapListAll))
	assert.False(t, Can(Role("superuser"), CapReview))
}

func TestPrincipalOwns(t *testing.T) {
	admin := &Principal{ID: "a1", Role: RoleAdmin}
	inst := &Principal{ID: "i1", Role: RoleInstructor}
	var anon *Principal

	assert.True(t, admin.Owns("someone-else"))
	assert.True(t, inst.Owns("i1"))
	assert.False(t, inst.Owns("i2"))
	assert.False(t, anon.Owns("i1"))
	assert.False(t, anon.Can(CapListAll))
}

func TestParseRole(t *testing.T) {
	assert.Equal(t, RoleInstructor, ParseRole("instructor"))
	assert.Equal(t, Role(""), ParseRole("dosen"))
}
