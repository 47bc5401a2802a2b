package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/spice-sync/internal/cli"
	"github.com/Veraticus/spice-sync/internal/common"
	"github.com/Veraticus/spice-sync/internal/syncer"
	"github.com/spf13/cobra"
)

func syncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull new, changed and removed transactions from Plaid",
		Long: `Run incremental sync rounds against Plaid.

  spice-sync sync --user you@example.com                  every credential of one user
  spice-sync sync --user you@example.com --credential X   a single credential
  spice-sync sync --all                                   every user (batch mode)

Each round resumes from the credential's stored cursor. A credential that is
already being synced by another process is reported and skipped.`,
		RunE: runSync,
	}

	cmd.Flags().String("user", "", "user ID or email")
	cmd.Flags().String("credential", "", "access credential to sync (default: all of the user's)")
	cmd.Flags().Bool("all", false, "sync every credential of every user")

	return cmd
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	all, _ := cmd.Flags().GetBool("all")
	userRef, _ := cmd.Flags().GetString("user")
	credential, _ := cmd.Flags().GetString("credential")

	if all == (userRef != "") {
		return common.NewUserError("pass either --user or --all", nil)
	}
	if all && credential != "" {
		return common.NewUserError("--credential requires --user", nil)
	}

	store, err := initStorage(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	client, err := initPlaidClient()
	if err != nil {
		return err
	}
	s, err := newSyncer(store, client)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()

	if all {
		progress := cli.NewSyncProgress(cmd.ErrOrStderr())
		summary, err := s.SyncAll(ctx, func(done, total int, outcome syncer.CredentialOutcome) {
			progress.Update(done, total, outcome.Success())
		})
		if summary != nil {
			fmt.Fprintln(out, renderBatchSummary(summary))
		}
		if failed := progress.Failed(); failed > 0 {
			fmt.Fprintln(out, cli.FormatWarning(fmt.Sprintf("%d credential(s) failed to sync; see the log for details", failed)))
		}
		return err
	}

	user, err := resolveUser(ctx, store, userRef)
	if err != nil {
		return err
	}

	if credential != "" {
		result, err := s.SyncCredential(ctx, user.ID, credential)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, renderSyncResult(result))
		if !result.Success() {
			return fmt.Errorf("sync finished with failed phases")
		}
		return nil
	}

	userResult, err := s.SyncAllCredentialsForUser(ctx, user.ID)
	if err != nil {
		return err
	}
	if len(userResult.Outcomes) == 0 {
		fmt.Fprintln(out, cli.FormatInfo("No linked credentials. Link one with: spice-sync link"))
		return nil
	}
	for _, outcome := range userResult.Outcomes {
		if outcome.Err != nil {
			fmt.Fprintln(out, cli.FormatError(fmt.Sprintf("%s: %v", maskCredential(outcome.AccessCredential), outcome.Err)))
			continue
		}
		fmt.Fprintln(out, renderSyncResult(outcome.Result))
	}
	if !userResult.Success() {
		return fmt.Errorf("one or more credentials failed to sync")
	}
	return nil
}

func renderSyncResult(r *syncer.SyncResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  • Accounts updated: %d\n", r.AccountsUpserted)
	fmt.Fprintf(&b, "  • Added: %s\n", renderPhase(r.Delta.Added))
	fmt.Fprintf(&b, "  • Modified: %s\n", renderPhase(r.Delta.Modified))
	fmt.Fprintf(&b, "  • Removed: %s\n", renderPhase(r.Delta.Removed))
	fmt.Fprintf(&b, "  • Duration: %s", r.Duration.Round(time.Millisecond))

	title := "Synced " + maskCredential(r.AccessCredential)
	if !r.Success() {
		title = cli.WarningIcon + " " + title
	}
	return cli.RenderBox(title, b.String())
}

func renderPhase(p syncer.PhaseResult) string {
	s := fmt.Sprintf("%d", p.Applied)
	if p.Filtered > 0 {
		s += fmt.Sprintf(" (%d non-expense dropped)", p.Filtered)
	}
	if p.Skipped > 0 {
		s += fmt.Sprintf(" (%d skipped)", p.Skipped)
	}
	if p.Err != nil {
		s += " " + cli.ErrorStyle.Render(p.Err.Error())
	}
	return s
}

func renderBatchSummary(s *syncer.BatchSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "  • Users: %d\n", s.Users)
	fmt.Fprintf(&b, "  • Credentials: %d (%d failed)\n", s.Credentials, s.CredentialsFailed)
	fmt.Fprintf(&b, "  • Accounts: %d/%d refreshed\n", s.SuccessfulAccounts, s.TotalAccounts)
	fmt.Fprintf(&b, "  • Transactions: +%d ~%d -%d\n", s.TransactionsAdded, s.TransactionsModified, s.TransactionsRemoved)
	fmt.Fprintf(&b, "  • Duration: %s", s.Duration.Round(time.Millisecond))
	return cli.RenderBox("Batch Sync Complete", b.String())
}
