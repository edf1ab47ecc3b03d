package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/alecgard/taskara/internal/auth"
	"github.com/alecgard/taskara/internal/jsontime"
	"github.com/alecgard/taskara/internal/mail"
	"github.com/alecgard/taskara/internal/project"
	"github.com/alecgard/taskara/internal/ticket"
	"github.com/alecgard/taskara/internal/user"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed demo users, a project and tickets",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const demoPassword = "taskara-demo"

var demoUsers = []user.SignupInput{
	{Name: "Ada Admin", Email: "ada@taskara.test", Password: demoPassword},
	{Name: "Dev Devlin", Email: "dev@taskara.test", Password: demoPassword},
	{Name: "Vera Viewer", Email: "vera@taskara.test", Password: demoPassword},
}

func runSeed(cmd *cobra.Command, args []string) error {
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

	if _, err := store.GetUserByEmail(ctx, demoUsers[0].Email); err == nil {
		slog.Info("demo data already exists, skipping seed")
		return nil
	} else if !errors.Is(err, user.ErrNotFound) {
		return fmt.Errorf("checking existing users: %w", err)
	}

	// Seeding never signs tokens, so the issuer secrets are placeholders.
	issuer := auth.NewIssuer("seed-access", "seed-refresh", time.Minute, time.Minute)
	users := user.NewService(store, issuer)
	projects := project.NewService(store, mail.LogSender{}, project.Options{InvitationTTL: cfg.Invitation.TTL})
	tickets := ticket.NewService(store)

	created := make([]*user.User, 0, len(demoUsers))
	for _, in := range demoUsers {
		u, err := users.Signup(ctx, in)
		if err != nil {
			return fmt.Errorf("creating user %s: %w", in.Email, err)
		}
		slog.Info("created user", "email", u.Email, "id", u.ID)
		created = append(created, u)
	}
	admin, dev, viewer := created[0], created[1], created[2]

	p, err := projects.Create(ctx, admin.ID, project.CreateInput{
		Title:       "Launch Plan",
		Description: "Everything needed to ship the first release.",
	})
	if err != nil {
		return fmt.Errorf("creating project: %w", err)
	}

	for _, m := range []struct {
		u    *user.User
		role string
	}{{dev, "developer"}, {viewer, "viewer"}} {
		inv, err := projects.IssueInvitation(ctx, p.ID, m.u.Email, m.role)
		if err != nil {
			return fmt.Errorf("inviting %s: %w", m.u.Email, err)
		}
		if _, err := projects.AcceptInvitation(ctx, p.ID, inv.Token); err != nil {
			return fmt.Errorf("accepting invitation for %s: %w", m.u.Email, err)
		}
	}

	due := time.Now().Add(7 * 24 * time.Hour)
	for _, in := range []ticket.CreateInput{
		{Title: "Write release notes", Priority: "medium", Assignee: dev.ID, DueDate: jsontime.Of(due)},
		{Title: "Fix login redirect", Description: "Users land on a blank page after login.", Priority: "high", Assignee: dev.ID, DueDate: jsontime.Of(due)},
		{Title: "Review onboarding copy", Priority: "low", Assignee: viewer.ID, DueDate: jsontime.Of(due)},
	} {
		t, err := tickets.Create(ctx, p.ID, in)
		if err != nil {
			return fmt.Errorf("creating ticket %q: %w", in.Title, err)
		}
		slog.Info("created ticket", "title", t.Title, "id", t.ID)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Project:   %s (%s)\n", p.Title, p.ID)
	for i, u := range created {
		fmt.Printf("User:      %-20s role=%s\n", u.Email, []string{"admin", "developer", "viewer"}[i])
	}
	fmt.Printf("Password:  %s\n", demoPassword)
	fmt.Printf("\nTry it:\n")
	fmt.Printf("  curl -c jar -H 'Content-Type: application/json' -d '{\"email\":\"%s\",\"password\":\"%s\"}' http://localhost:%d/user/login\n",
		admin.Email, demoPassword, cfg.Server.Port)
	fmt.Printf("  curl -b jar http://localhost:%d/project/%s/tickets\n", cfg.Server.Port, p.ID)
	return nil
}
