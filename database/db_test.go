package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigDSN(t *testing.T) {
	cfg := Config{Host: "db", Port: "5432", User: "qb", Password: "secret", Name: "queenbee"}
	assert.Equal(t,
		"host=db user=qb password=secret dbname=queenbee port=5432 sslmode=disable TimeZone=Pacific/Auckland",
		cfg.DSN(),
	)

	cfg.SSLMode = "require"
	cfg.TimeZone = "UTC"
	assert.Contains(t, cfg.DSN(), "sslmode=require TimeZone=UTC")
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	client, err := NewRedisClient(context.Background(), "not-a-url")
	require.Error(t, err)
	assert.Nil(t, client)
}

func TestClose_NilIsNoop(t *testing.T) {
	assert.NoError(t, Close(nil))
}
