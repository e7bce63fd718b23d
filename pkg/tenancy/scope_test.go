package tenancy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/platinummonkey/sunup/pkg/apperr"
)

func TestScope_Allows(t *testing.T) {
	assert.True(t, Tenant("t1").Allows("t1"))
	assert.False(t, Tenant("t1").Allows("t2"))
	assert.False(t, Tenant("").Allows(""))
	assert.False(t, Scope{}.Allows("t1"))
	assert.True(t, Global().Allows("t1"))
	assert.True(t, Global().Allows("t2"))
}

func TestScope_CheckRead(t *testing.T) {
	err := Tenant("t1").CheckRead("person", "t2")
	assert.True(t, apperr.IsNotFound(err))
	assert.Equal(t, "Not found: person", err.Error())

	assert.NoError(t, Tenant("t1").CheckRead("person", "t1"))
	assert.NoError(t, Global().CheckRead("person", "t2"))
}

func TestScope_CheckWrite(t *testing.T) {
	err := Tenant("t1").CheckWrite("person", "t2")
	assert.True(t, apperr.IsForbidden(err))
	assert.Equal(t, apperr.KindCrossTenantAccess, apperr.KindOf(err))
	assert.Contains(t, err.Error(), "Forbidden:")

	assert.NoError(t, Tenant("t1").CheckWrite("person", "t1"))
	assert.NoError(t, Global().CheckWrite("person", "t2"))
}

func TestScope_Filter(t *testing.T) {
	clause, args := Tenant("t1").Filter("tenant_id", 3)
	assert.Equal(t, "tenant_id = $3", clause)
	assert.Equal(t, []interface{}{"t1"}, args)

	clause, args = Global().Filter("tenant_id", 1)
	assert.Equal(t, "1=1", clause)
	assert.Empty(t, args)
}

func TestScope_String(t *testing.T) {
	assert.Equal(t, "tenant:t1", Tenant("t1").String())
	assert.Equal(t, "global", Global().String())
	assert.False(t, Tenant("t1").IsGlobal())
	assert.Equal(t, "t1", Tenant("t1").TenantID())
	assert.Equal(t, "", Global().TenantID())
}
