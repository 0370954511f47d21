package importers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/csvflow/importer/internal/importer"
	"github.com/google/uuid"
)

// receivedOnFormats are the date layouts accepted for the received_on
// column, tried in order.
var receivedOnFormats = []string{"2006-01-02", "1/2/2006", "01/02/2006"}

func registerDonations() {
	importer.Register(importer.RowImporter{
		Type:            "donation",
		Label:           "Donations",
		RequiredColumns: []string{"donor_email", "amount", "received_on"},
		ImportRow:       importDonationRow,
		DeleteRecord:    deleteDonationRecord,
	})
}

func importDonationRow(ctx context.Context, db importer.DBTX, row importer.Row) (string, error) {
	donorEmail := strings.ToLower(row.Get("donor_email"))
	if !validEmail(donorEmail) {
		return "", fmt.Errorf("donor_email %q is not a valid email address", donorEmail)
	}

	amount, err := parseAmount(row.Get("amount"))
	if err != nil {
		return "", err
	}

	receivedOn, err := parseReceivedOn(row.Get("received_on"))
	if err != nil {
		return "", err
	}

	var id uuid.UUID
	err = db.QueryRow(ctx, `
		INSERT INTO donations (id, donor_email, amount, received_on, note)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		uuid.New(), donorEmail, amount, receivedOn, row.Get("note"),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert donation: %w", err)
	}
	return id.String(), nil
}

func deleteDonationRecord(ctx context.Context, db importer.DBTX, recordID string) error {
	id, err := uuid.Parse(recordID)
	if err != nil {
		return fmt.Errorf("invalid donation id %q: %w", recordID, err)
	}
	if _, err := db.Exec(ctx, `DELETE FROM donations WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete donation %s: %w", id, err)
	}
	return nil
}

func parseAmount(raw string) (float64, error) {
	cleaned := strings.ReplaceAll(strings.TrimPrefix(raw, "$"), ",", "")
	amount, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("amount %q is not a number", raw)
	}
	if amount <= 0 {
		return 0, fmt.Errorf("amount must be greater than zero, got %s", raw)
	}
	return amount, nil
}

func parseReceivedOn(raw string) (time.Time, error) {
	for _, layout := range receivedOnFormats {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("received_on %q is not a recognized date", raw)
}
