package statcache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisPublisher_Publish(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(db, "fs:", time.Hour)
	snap := build(t)
	body, err := json.Marshal(snap.Summary())
	require.NoError(t, err)

	mock.ExpectSet("fs:run:"+snap.RunID(), body, time.Hour).SetVal("OK")
	mock.ExpectSet("fs:latest", snap.RunID(), 0).SetVal("OK")
	mock.ExpectPublish("fs:runs", snap.RunID()).SetVal(1)

	require.NoError(t, pub.Publish(context.Background(), snap))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_PublishError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(db, "fs:", time.Hour)
	snap := build(t)
	body, _ := json.Marshal(snap.Summary())

	mock.ExpectSet("fs:run:"+snap.RunID(), body, time.Hour).SetErr(errors.New("connection refused"))

	err := pub.Publish(context.Background(), snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis set run")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_Latest(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(db, "fs:", 0)
	snap := build(t)
	body, _ := json.Marshal(snap.Summary())

	mock.ExpectGet("fs:latest").SetVal(snap.RunID())
	mock.ExpectGet("fs:run:" + snap.RunID()).SetVal(string(body))

	got, err := pub.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, snap.RunID(), got.RunID)
	assert.Equal(t, snap.Diagnostics(), got.Diagnostics)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_LatestMissing(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(db, "fs:", 0)

	mock.ExpectGet("fs:latest").RedisNil()

	_, err := pub.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoRun)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisPublisher_RunExpired(t *testing.T) {
	db, mock := redismock.NewClientMock()
	pub := NewRedisPublisher(db, "fs:", 0)

	mock.ExpectGet("fs:run:abc").RedisNil()

	_, err := pub.Run(context.Background(), "abc")
	assert.ErrorIs(t, err, ErrNoRun)
	assert.False(t, errors.Is(err, redis.Nil))
}
