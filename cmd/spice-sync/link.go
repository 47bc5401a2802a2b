package main

import (
	"context"
	"fmt"

	"github.com/Veraticus/spice-sync/internal/cli"
	"github.com/Veraticus/spice-sync/internal/plaid"
	"github.com/Veraticus/spice-sync/internal/storage"
	"github.com/spf13/cobra"
)

// Plaid's "First Platypus Bank" sandbox institution.
const defaultSandboxInstitution = "ins_109508"

func linkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Connect bank accounts via Plaid",
		Long: `Connect bank accounts using Plaid Link.

1. spice-sync link token --user you@example.com
   prints a Link token for your Plaid Link front end
2. spice-sync link exchange <public-token> --user you@example.com
   trades the public token Link returns for an access credential and
   runs the first sync, which records the credential's accounts

In the sandbox, "link sandbox" does both steps without Link.`,
	}

	cmd.PersistentFlags().String("user", "", "user ID or email")

	cmd.AddCommand(&cobra.Command{
		Use:   "token",
		Short: "Create a Plaid Link token",
		RunE:  runLinkToken,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "exchange <public-token>",
		Short: "Exchange a Link public token and run the first sync",
		Args:  cobra.ExactArgs(1),
		RunE:  runLinkExchange,
	})

	sandbox := &cobra.Command{
		Use:   "sandbox",
		Short: "Link a sandbox institution without Plaid Link",
		RunE:  runLinkSandbox,
	}
	sandbox.Flags().String("institution", defaultSandboxInstitution, "sandbox institution ID")
	cmd.AddCommand(sandbox)

	return cmd
}

func runLinkToken(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	userRef, _ := cmd.Flags().GetString("user")
	user, err := resolveUser(ctx, store, userRef)
	if err != nil {
		return err
	}

	client, err := initPlaidClient()
	if err != nil {
		return err
	}

	token, err := client.CreateLinkToken(ctx, user.ID)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}

func runLinkExchange(cmd *cobra.Command, args []string) error {
	client, err := initPlaidClient()
	if err != nil {
		return err
	}
	return linkAndSync(cmd, client, func(ctx context.Context) (string, error) {
		return args[0], nil
	})
}

func runLinkSandbox(cmd *cobra.Command, _ []string) error {
	institution, _ := cmd.Flags().GetString("institution")

	client, err := initPlaidClient()
	if err != nil {
		return err
	}
	return linkAndSync(cmd, client, func(ctx context.Context) (string, error) {
		return client.CreateSandboxPublicToken(ctx, institution)
	})
}

// linkAndSync exchanges a public token and runs the credential's first sync round.
func linkAndSync(cmd *cobra.Command, client *plaid.Client, publicToken func(context.Context) (string, error)) error {
	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	userRef, _ := cmd.Flags().GetString("user")
	user, err := resolveUser(ctx, store, userRef)
	if err != nil {
		return err
	}

	token, err := publicToken(ctx)
	if err != nil {
		return err
	}

	accessToken, itemID, err := client.ExchangePublicToken(ctx, token)
	if err != nil {
		return err
	}

	s, err := newSyncer(store, client)
	if err != nil {
		return err
	}
	result, err := s.SyncCredential(ctx, user.ID, accessToken)
	if err != nil {
		return fmt.Errorf("linked item %s but the first sync failed: %w", itemID, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, cli.FormatSuccess(fmt.Sprintf("Linked item %s for %s", itemID, user.Email)))
	fmt.Fprintln(out, renderSyncResult(result))
	return printCredentialAccounts(ctx, cmd, store, user.ID, accessToken)
}

func printCredentialAccounts(ctx context.Context, cmd *cobra.Command, store *storage.SQLiteStorage, userID, credential string) error {
	accounts, err := store.ListAccounts(ctx, userID)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, a := range accounts {
		if a.AccessCredential == credential {
			rows = append(rows, accountRow(a))
		}
	}
	if len(rows) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(accountHeaders, rows))
	}
	return nil
}
