package service

import (
	"context"
	"log/slog"

	"keyward/internal/models"
	"keyward/internal/store"
)

// AsyncLogChangelog records an operator action. The slog line is emitted
// immediately; the database write happens in the background so a slow
// audit insert never delays the operator's response.
func AsyncLogChangelog(ctx context.Context, logStore store.LogStore, entry *models.Changelog) {
	slog.Info("Operator action",
		"action", entry.Action,
		"actor", entry.Actor,
		"license_id", entry.LicenseID,
	)

	go func() {
		if err := logStore.CreateChangelog(context.Background(), entry); err != nil {
			slog.Error("Failed to create changelog", "error", err, "action", entry.Action)
		}
	}()
}
