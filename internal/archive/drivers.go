package archive

import (
	// Registers "pgx" with database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"
	// Registers "sqlite" (pure Go, no cgo).
	_ "modernc.org/sqlite"
)
