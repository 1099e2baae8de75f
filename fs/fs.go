package appfs

import "embed"

// FS holds the files the apps need at runtime.
//
//go:embed migrations/*.sql templates/email/* plans.yaml common-passwords.txt.gz
var FS embed.FS

const (
	MigrationsDir      = "migrations"
	EmailTemplatesDir  = "templates/email"
	PlanCatalog        = "plans.yaml"
	CommonPasswordList = "common-passwords.txt.gz"
)
