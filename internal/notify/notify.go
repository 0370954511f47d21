// Package notify delivers import lifecycle notifications.
//
// Delivery is fire-and-forget: the pipeline never waits on or retries a
// notification, and a delivery failure never fails a run. The shipped
// adapter writes structured log lines; a mail or webhook transport slots
// in behind the same importer.Notifier interface.
package notify

import (
	"context"
	"log/slog"

	"github.com/csvflow/importer/internal/importer"
)

// LogNotifier emits notifications as structured log entries.
type LogNotifier struct{}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) ImportFinished(_ context.Context, n importer.FinishedNotice) {
	slog.Info("notification: import processing finished",
		"recipient", n.Recipient,
		"import_id", n.ImportID,
		"import_type", n.ImportType,
		"records", n.Records,
		"records_with_errors", n.RecordsWithErrors,
		"error_ref", n.ErrorRef,
	)
}

func (LogNotifier) ImportDeleted(_ context.Context, n importer.DeletedNotice) {
	slog.Info("notification: import deletion finished",
		"recipient", n.Recipient,
		"import_id", n.ImportID,
		"import_type", n.ImportType,
	)
}
