package scope

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScope(t *testing.T) {
	s := Scope{CompanyID: 7, DBName: "acme_s_r_o_"}
	assert.True(t, s.Valid())
	assert.Equal(t, "acme_s_r_o_#7", s.String())

	assert.False(t, Scope{}.Valid())
	assert.False(t, Scope{CompanyID: 3}.Valid())
}
