package clickhouse

import (
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/creasty/defaults"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptionsFromDefaults(t *testing.T) {
	var cfg Config
	require.NoError(t, defaults.Set(&cfg))
	opts := cfg.options()

	assert.Equal(t, []string{"localhost:9000"}, opts.Addr)
	assert.Equal(t, clickhouse.Native, opts.Protocol)
	assert.Equal(t, "finfusion", opts.Auth.Database)
	assert.Equal(t, "default", opts.Auth.Username)
	assert.Equal(t, 30, opts.Settings["max_execution_time"])
	assert.Equal(t, 10, opts.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, opts.ConnMaxLifetime)
	assert.NotContains(t, opts.Settings, "async_insert")
}

func TestOptionsAsyncInsertOverHTTP(t *testing.T) {
	cfg := Config{Host: "ch.internal", Port: 8123, UseHTTP: true, AsyncInsert: true}
	opts := cfg.options()

	assert.Equal(t, []string{"ch.internal:8123"}, opts.Addr)
	assert.Equal(t, clickhouse.HTTP, opts.Protocol)
	assert.Equal(t, 1, opts.Settings["async_insert"])
	assert.Equal(t, 0, opts.Settings["wait_for_async_insert"])
	assert.NotContains(t, opts.Settings, "max_execution_time")
}

func TestNewClientRequiresHost(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}
