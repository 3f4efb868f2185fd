// Command userctl is the out-of-band administration tool. It changes account
// status and lists users; the HTTP API never does either.
//
//	userctl list [-limit N] [-offset N]
//	userctl activate -email someone@example.com
//	userctl deactivate -email someone@example.com
//	userctl history -email someone@example.com [-limit N]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"pg-user-api/internal/config"
	"pg-user-api/internal/database"
	"pg-user-api/internal/logger"
	"pg-user-api/internal/models"
	"pg-user-api/internal/repository"
)

type userAdmin interface {
	List(ctx context.Context, limit, offset int) ([]models.UserSummary, error)
	SetStatus(ctx context.Context, email, status string) error
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	LoginHistory(ctx context.Context, userID int64, limit int) ([]models.LoginEvent, error)
}

var errUsage = errors.New("usage: userctl <list|activate|deactivate|history> [flags]")

func main() {
	cfg := config.MustLoad()
	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal("open database", zap.Error(err))
	}
	defer db.Close()
	if err := database.EnsureSchema(ctx, db); err != nil {
		log.Fatal("ensure schema", zap.Error(err))
	}

	if err := run(ctx, repository.NewUserRepo(db), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, repo userAdmin, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	cmd, args := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	email := fs.String("email", "", "account email")
	limit := fs.Int("limit", 50, "maximum rows to print")
	offset := fs.Int("offset", 0, "rows to skip")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}

	switch cmd {
	case "list":
		users, err := repo.List(ctx, *limit, *offset)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tEMAIL\tNAME\tTYPE\tSTATUS\tCREATED")
		for _, u := range users {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, u.UserType, u.Status, u.CreatedAt.Format(time.RFC3339))
		}
		return w.Flush()

	case "activate", "deactivate":
		if *email == "" {
			return fmt.Errorf("%w: -email is required", errUsage)
		}
		status := models.UserStatusActive
		if cmd == "deactivate" {
			status = models.UserStatusInactive
		}
		if err := repo.SetStatus(ctx, *email, status); err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("no user with email %s", *email)
			}
			return err
		}
		fmt.Fprintf(out, "%s is now %s\n", models.NormalizeEmail(*email), status)
		return nil

	case "history":
		if *email == "" {
			return fmt.Errorf("%w: -email is required", errUsage)
		}
		u, err := repo.GetByEmail(ctx, models.NormalizeEmail(*email))
		if err != nil {
			return err
		}
		events, err := repo.LoginHistory(ctx, u.ID, *limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "TIME\tIP\tDEVICE")
		for _, ev := range events {
			fmt.Fprintf(w, "%s\t%s\t%s\n", ev.LoginTime.Format(time.RFC3339), deref(ev.IPAddress), deref(ev.DeviceInfo))
		}
		return w.Flush()

	default:
		return errUsage
	}
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}
