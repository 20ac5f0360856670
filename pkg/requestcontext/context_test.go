package requestcontext

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	id "instahelp/pkg/domain"
)

func TestActor(t *testing.T) {
	ctx := context.Background()
	_, ok := Actor(ctx)
	assert.False(t, ok)
	assert.True(t, UserID(ctx).IsNil())

	actor := id.Actor{UserID: id.UserID(uuid.New()), Role: id.RoleClinician}
	ctx = WithActor(ctx, actor)
	got, ok := Actor(ctx)
	assert.True(t, ok)
	assert.Equal(t, actor, got)
	assert.Equal(t, actor.UserID, UserID(ctx))
}

func TestActor_NilUserIsAnonymous(t *testing.T) {
	ctx := WithActor(context.Background(), id.Actor{Role: id.RoleOwner})
	_, ok := Actor(ctx)
	assert.False(t, ok)
}

func TestNow(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	assert.Equal(t, fixed, Now(WithTime(context.Background(), fixed)))
	assert.WithinDuration(t, time.Now(), Now(context.Background()), time.Second)
}

func TestClientMetadata(t *testing.T) {
	ctx := WithClientMetadata(context.Background(), "10.0.0.1", "curl/8.0")
	assert.Equal(t, "10.0.0.1", ClientIP(ctx))
	assert.Equal(t, "curl/8.0", UserAgent(ctx))
	assert.Equal(t, "req-1", RequestID(WithRequestID(ctx, "req-1")))
}
