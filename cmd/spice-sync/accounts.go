package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/Veraticus/spice-sync/internal/cli"
	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/model"
	"github.com/spf13/cobra"
)

var accountHeaders = []string{"ID", "ACCOUNT", "NAME", "TYPE", "BALANCE", "INSTITUTION", "CREDENTIAL"}

func accountsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Inspect synced accounts",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List a user's accounts",
		RunE:  runAccountsList,
	}
	list.Flags().String("user", "", "user ID or email")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an account and its transactions",
		Long: `Delete an account by its local ID (see "accounts list").
All of the account's transactions are deleted with it. Syncing the
credential again will recreate the account but not its past transactions.`,
		Args: cobra.ExactArgs(1),
		RunE: runAccountsDelete,
	})

	return cmd
}

func runAccountsList(cmd *cobra.Command, _ []string) error {
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

	accounts, err := store.ListAccounts(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(accounts) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No accounts yet. Link a bank with: spice-sync link"))
		return nil
	}

	rows := make([][]string, 0, len(accounts))
	for _, a := range accounts {
		rows = append(rows, accountRow(a))
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(accountHeaders, rows))
	return nil
}

func runAccountsDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return common.NewUserError(fmt.Sprintf("invalid account ID %q", args[0]), err)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeleteAccount(ctx, id); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewUserError(fmt.Sprintf("no account with ID %d", id), err)
		}
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Deleted account %d", id)))
	return nil
}

func accountRow(a model.Account) []string {
	return []string{
		strconv.FormatInt(a.ID, 10),
		a.AccountID,
		a.Name,
		string(a.Type),
		a.Balance.StringFixed(2),
		a.Institution,
		maskCredential(a.AccessCredential),
	}
}
