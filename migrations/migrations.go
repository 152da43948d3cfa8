// Package migrations встраивает SQL-миграции в бинарники сервисов.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
