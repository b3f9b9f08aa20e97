package database

import (
	"testing"

	"gamehub_backend/internal/config"

	"github.com/stretchr/testify/assert"
)

func TestDSN(t *testing.T) {
	cfg := &config.DatabaseConfig{
		Host: "db", Port: 3306, User: "u", Password: "p", DBName: "gamehub",
		Charset: "utf8mb4", ParseTime: true,
	}
	assert.Equal(t, "u:p@tcp(db:3306)/gamehub?charset=utf8mb4&parseTime=true&loc=Local", dsn(cfg))
}
