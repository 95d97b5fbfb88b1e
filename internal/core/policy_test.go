package core

import (
	"testing"

	"formcore/pkg/domain"

	"github.com/stretchr/testify/assert"
)

func TestAuthorize(t *testing.T) {
	form := Form{Base: domain.Base{ID: "f1"}, OwnerID: "u1"}
	assert.Equal(t, RelationOwner, Authorize(Identity{UserID: "u1"}, form))
	assert.Equal(t, RelationNotOwner, Authorize(Identity{UserID: "u2"}, form))
	assert.Equal(t, RelationAnonymous, Authorize(domain.Anonymous(), form))
	// an ownerless form never matches the anonymous identity
	assert.Equal(t, RelationAnonymous, Authorize(domain.Anonymous(), Form{}))

	assert.Equal(t, "owner", RelationOwner.String())
	assert.Equal(t, "not_owner", RelationNotOwner.String())
	assert.Equal(t, "anonymous", RelationAnonymous.String())
}
