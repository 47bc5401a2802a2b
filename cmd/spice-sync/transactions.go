package main

import (
	"fmt"
	"time"

	"github.com/Veraticus/spice-sync/internal/cli"
	"github.com/spf13/cobra"
)

func transactionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transactions",
		Short: "Inspect synced transactions",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List an account's expenses in a date range",
		RunE:  runTransactionsList,
	}
	list.Flags().Int64("account", 0, "local account ID (see: accounts list)")
	list.Flags().String("start", "", "first day, YYYY-MM-DD (default: 30 days ago)")
	list.Flags().String("end", "", "last day, YYYY-MM-DD (default: today)")
	_ = list.MarkFlagRequired("account")
	cmd.AddCommand(list)

	return cmd
}

func runTransactionsList(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	accountID, _ := cmd.Flags().GetInt64("account")
	startFlag, _ := cmd.Flags().GetString("start")
	endFlag, _ := cmd.Flags().GetString("end")

	now := time.Now()
	start, err := parseDateFlag(startFlag, now.AddDate(0, 0, -30), false)
	if err != nil {
		return err
	}
	end, err := parseDateFlag(endFlag, now, true)
	if err != nil {
		return err
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	txns, err := store.GetAccountTransactions(ctx, accountID, start, end)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), cli.FormatInfo("No transactions in range"))
		return nil
	}

	rows := make([][]string, 0, len(txns))
	for _, t := range txns {
		rows = append(rows, []string{
			t.Datetime.Local().Format("2006-01-02 15:04"),
			t.Amount.StringFixed(2),
			t.Description,
			t.MerchantName,
			t.TransactionType,
			t.PaymentChannel,
		})
	}
	fmt.Fprintln(cmd.OutOrStdout(), cli.RenderTable(
		[]string{"WHEN", "AMOUNT", "DESCRIPTION", "MERCHANT", "TYPE", "CHANNEL"}, rows))
	return nil
}
