package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("STORAGE", "")
	t.Setenv("PAYMENT_TIMEOUT", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("ORDER_EXPIRE_MINUTES", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Storage)
	assert.Equal(t, 10*time.Second, cfg.Payment.Timeout)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Zero(t, cfg.Order.ExpireAfter)
	assert.Equal(t, "migrations", cfg.Database.MigrationsPath)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORAGE", "memory")
	t.Setenv("API_PORT", "9090")
	t.Setenv("PAYMENT_TIMEOUT", "3s")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ORDER_EXPIRE_MINUTES", "30")
	t.Setenv("REDIS_DB", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.APIPort)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, 3*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, 30*time.Minute, cfg.Order.ExpireAfter)
	assert.Equal(t, 2, cfg.Redis.DB)
}

func TestLoadRejectsUnknownStorage(t *testing.T) {
	t.Setenv("STORAGE", "postgres")
	_, err := Load()
	assert.Error(t, err)
}

func TestMigrationDSN(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 3306, User: "shop", Password: "pw", DBName: "shop"}
	assert.Equal(t, "mysql://shop:pw@tcp(db:3306)/shop?multiStatements=true", db.MigrationDSN())
}
