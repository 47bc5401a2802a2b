package main

import (
	"errors"
	"fmt"

	"github.com/Veraticus/spice-sync/internal/cli"
	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/spf13/cobra"
)

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage local users",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "add <email>",
		Short: "Create a user",
		Args:  cobra.ExactArgs(1),
		RunE:  runUsersAdd,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE:  runUsersList,
	})

	return cmd
}

func runUsersAdd(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	user, err := store.CreateUser(ctx, args[0])
	if errors.Is(err, common.ErrDuplicateEntry) {
		return common.NewUserError(fmt.Sprintf("a user with email %s already exists", args[0]), err)
	}
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), cli.FormatSuccess(fmt.Sprintf("Created user %s (%s)", user.Email, user.ID)))
	return nil
}

func runUsersList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	users, err := store.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No users yet. Add one with: spice-sync users add <email>"))
		return nil
	}

	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.ID, u.Email, u.CreatedAt.Local().Format("2006-01-02")})
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable([]string{"ID", "EMAIL", "CREATED"}, rows))
	return nil
}
