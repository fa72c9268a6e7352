package repository

import _ "embed"

// Schema is the DDL for every pharmacy table. It is idempotent.
//
//go:embed schema.sql
var Schema string
