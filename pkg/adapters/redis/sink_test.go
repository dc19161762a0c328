package redis_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/cadloop/pkg/adapters/redis"
	"github.com/aretw0/cadloop/pkg/ports"
	"github.com/aretw0/cadloop/pkg/ports/tests"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisSink_Contract(t *testing.T) {
	// Setup miniredis
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	tests.ArtifactSinkContractTest(t, redis.NewFromClient(client))
}

func TestRedisSink_TTL_Expiration(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{
		Addr: mr.Addr(),
	})

	sink := redis.NewFromClient(client, redis.WithTTL(1*time.Second))
	ctx := context.Background()
	a := ports.Artifact{Key: "box1/3d-iso-aa.png", MediaType: "image/png", Data: []byte{1, 2, 3}}

	require.NoError(t, sink.Put(ctx, a))

	got, err := sink.Get(ctx, a.Key)
	require.NoError(t, err)
	assert.Equal(t, a.Data, got.Data)

	mr.FastForward(2 * time.Second)

	_, err = sink.Get(ctx, a.Key)
	assert.ErrorIs(t, err, ports.ErrArtifactNotFound)
}

func TestRedisSink_Prefix(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	sink := redis.NewFromClient(client, redis.WithPrefix("test:"))

	require.NoError(t, sink.Put(context.Background(), ports.Artifact{Key: "k.png", MediaType: "image/png", Data: []byte("v")}))

	assert.True(t, mr.Exists("test:k.png"))
	assert.Equal(t, "image/png", mr.HGet("test:k.png", "media_type"))
}

func TestRedisSink_NewFromURL(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	sink, err := redis.New("redis://" + mr.Addr() + "/0")
	require.NoError(t, err)
	defer sink.Close()

	assert.NoError(t, sink.Ping(context.Background()))

	_, err = redis.New("://not-a-url")
	assert.Error(t, err)
}
