package infra_redis_init

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/humanbelnik/judgement/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMustEstablishConn(t *testing.T) {
	mr := miniredis.RunT(t)

	client := MustEstablishConn(config.RedisCache{Host: mr.Host(), Port: mr.Port()})
	defer client.Close()

	require.NoError(t, client.Set("k", "v", 0).Err())
	mr.CheckGet(t, "k", "v")

	opts := Options(config.RedisCache{Host: "cache", Port: "6380", DB: 2})
	assert.Equal(t, "cache:6380", opts.Addr)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, 3, opts.MaxRetries)
}
