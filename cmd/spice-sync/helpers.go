package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/config"
	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/Veraticus/spice-sync/internal/plaid"
	"github.com/Veraticus/spice-sync/internal/service"
	"github.com/Veraticus/spice-sync/internal/storage"
	"github.com/Veraticus/spice-sync/internal/syncer"
)

// initStorage opens the configured database and brings its schema up to date.
func initStorage(ctx context.Context) (*storage.SQLiteStorage, error) {
	store, err := storage.NewSQLiteStorage(config.DatabasePath())
	if err != nil {
		return nil, err
	}

	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return store, nil
}

func initPlaidClient() (*plaid.Client, error) {
	cfg, err := config.LoadPlaidConfig()
	if err != nil {
		return nil, common.NewUserError("Plaid is not configured; set plaid.client_id and plaid.secret or PLAID_CLIENT_ID and PLAID_SECRET", err)
	}
	return plaid.NewClient(cfg)
}

func newSyncer(store service.Storage, feed plaid.ChangeFeed) (*syncer.Syncer, error) {
	cfg, err := config.LoadSyncConfig()
	if err != nil {
		return nil, err
	}
	return syncer.New(store, feed, cfg)
}

// resolveUser accepts either a user ID or an email address.
func resolveUser(ctx context.Context, store service.Storage, ref string) (*model.User, error) {
	if ref == "" {
		return nil, common.NewUserError("--user is required", nil)
	}

	var (
		user *model.User
		err  error
	)
	if strings.Contains(ref, "@") {
		user, err = store.GetUserByEmail(ctx, ref)
	} else {
		user, err = store.GetUser(ctx, ref)
	}
	if errors.Is(err, common.ErrNotFound) {
		return nil, common.NewUserError(fmt.Sprintf("no user %q; create one with: spice-sync users add <email>", ref), err)
	}
	return user, err
}

// maskCredential hides all but the last four characters of an access token.
func maskCredential(cred string) string {
	if len(cred) <= 4 {
		return strings.Repeat("*", len(cred))
	}
	return strings.Repeat("*", 8) + cred[len(cred)-4:]
}

// parseDateFlag parses YYYY-MM-DD in the local zone. endOfDay moves the result
// to the last instant of that day.
func parseDateFlag(value string, fallback time.Time, endOfDay bool) (time.Time, error) {
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, value, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", value, err)
	}
	if endOfDay {
		d = d.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return d, nil
}
