package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/alecgard/taskara/internal/project"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Rebuild every user's project list from the project member records",
	RunE:  runReconcile,
}

func init() {
	rootCmd.AddCommand(reconcileCmd)
}

func runReconcile(cmd *cobra.Command, args []string) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	ctx := context.Background()
	store, err := openStore(ctx, cfg.Database, nil)
	if err != nil {
		return err
	}
	defer store.Close(ctx)

	svc := project.NewService(store, nil, project.Options{InvitationTTL: cfg.Invitation.TTL})
	res, err := svc.ReconcileAll(ctx)
	if err != nil {
		return err
	}
	slog.Info("reconcile finished", "projects", res.Projects, "mirrored", res.Mirrored, "pruned", res.Pruned, "skipped", res.Skipped)
	fmt.Printf("Reconciled %d projects: %d entries mirrored, %d stale entries pruned, %d members skipped\n",
		res.Projects, res.Mirrored, res.Pruned, res.Skipped)
	return nil
}
