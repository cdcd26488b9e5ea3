// Package db содержит миграции схемы хранилища метаданных.
package db

import "embed"

// Migrations встраиваются в бинарник, чтобы bootstrap работал и в Lambda без файловой системы.
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"
