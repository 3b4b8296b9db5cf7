package migrations

import (
	_ "embed"
	"fmt"
)

//go:embed schema.sql
var initialSchema string

// GetInitialSchema returns the initial database schema
func GetInitialSchema() (string, error) {
	if initialSchema == "" {
		return "", fmt.Errorf("embedded schema is empty")
	}
	return initialSchema, nil
}
