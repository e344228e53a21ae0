package appfs

import "embed"

// FS holds the SQL migrations, email templates and static assets shipped inside the binaries.
//go:embed migrations/*.sql templates/email/* assets/*
var FS embed.FS

const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "templates/email"
	CommonPasswords   = "assets/common-passwords.txt.gz"
)
