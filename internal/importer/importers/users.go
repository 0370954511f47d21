// Package importers registers the closed set of RowImporter variants.
// Blank-import it from the binary entrypoint so init registration runs.
package importers

import (
	"context"
	"fmt"
	"strings"

	"github.com/csvflow/importer/internal/importer"
	"github.com/google/uuid"
)

func init() {
	registerUsers()
	registerDonations()
}

func registerUsers() {
	importer.Register(importer.RowImporter{
		Type:            "user",
		Label:           "Users",
		RequiredColumns: []string{"first_name", "last_name", "email"},
		ImportRow:       importUserRow,
		DeleteRecord:    deleteUserRecord,
	})
}

func importUserRow(ctx context.Context, db importer.DBTX, row importer.Row) (string, error) {
	firstName := row.Get("first_name")
	lastName := row.Get("last_name")
	email := strings.ToLower(row.Get("email"))
	phone := row.Get("phone")

	if firstName == "" {
		return "", fmt.Errorf("first_name can't be blank")
	}
	if lastName == "" {
		return "", fmt.Errorf("last_name can't be blank")
	}
	if !validEmail(email) {
		return "", fmt.Errorf("email %q is not a valid email address", email)
	}

	var id uuid.UUID
	err := db.QueryRow(ctx, `
		INSERT INTO users (id, first_name, last_name, email, phone)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (email) DO UPDATE
		SET first_name = EXCLUDED.first_name,
		    last_name  = EXCLUDED.last_name,
		    phone      = EXCLUDED.phone
		RETURNING id`,
		uuid.New(), firstName, lastName, email, phone,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert user: %w", err)
	}
	return id.String(), nil
}

func deleteUserRecord(ctx context.Context, db importer.DBTX, recordID string) error {
	id, err := uuid.Parse(recordID)
	if err != nil {
		return fmt.Errorf("invalid user id %q: %w", recordID, err)
	}
	// Tolerates the row being already gone.
	if _, err := db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	return nil
}

// validEmail is a presence-plus-shape check, not an RFC validator.
// Anything the mail system rejects later shows up as a bounced
// notification, not a broken import.
func validEmail(email string) bool {
	at := strings.Index(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}
	domain := email[at+1:]
	return strings.Contains(domain, ".") && !strings.ContainsAny(email, " \t")
}
