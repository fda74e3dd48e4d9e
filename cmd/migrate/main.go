package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"agora-chat/config"
	"agora-chat/internal/services"
	"agora-chat/pkg/database"
	"agora-chat/pkg/logger"

	"go.uber.org/zap"
)

const usage = `
Agora Chat - Database CLI Tool

Usage:
  migrate [flags] [command]

Commands:
  up          Apply all pending migrations
  down        Roll back every migration (DANGEROUS)
  status      Show migration version and connectivity
  seed        Insert the development users
  token       Print an access token for a development user

Flags:
  -user string   Username for the token command (default "alice")
  -ttl duration  Lifetime of the issued token (default 24h)

Examples:
  go run ./cmd/migrate up
  go run ./cmd/migrate seed
  go run ./cmd/migrate -user bob token
`

func main() {
	username := flag.String("user", "alice", "Username for the token command")
	ttl := flag.Duration("ttl", 24*time.Hour, "Lifetime of the issued token")

	flag.Usage = func() {
		fmt.Print(usage)
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.LoadConfig()
	l := logger.New(cfg.AppMode)
	defer l.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var err error
	switch command := flag.Arg(0); command {
	case "up":
		err = runUp(cfg, l)
	case "down":
		err = runDown(cfg, l)
	case "status":
		err = runStatus(ctx, cfg, l)
	case "seed":
		err = runSeed(ctx, cfg, l)
	case "token":
		err = runToken(cfg, *username, *ttl)
	default:
		fmt.Printf("Unknown command: %s\n", command)
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		l.Logger.Error("command failed", zap.String("command", flag.Arg(0)), zap.Error(err))
		os.Exit(1)
	}
}

func runUp(cfg *config.Config, l *logger.Logger) error {
	result, err := database.MigrateUp(cfg.DatabaseURL())
	if err != nil {
		return err
	}
	if result.Changed {
		l.Logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		l.Logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	return nil
}

func runDown(cfg *config.Config, l *logger.Logger) error {
	if err := database.MigrateDown(cfg.DatabaseURL()); err != nil {
		return err
	}
	l.Logger.Warn("all migrations rolled back")
	return nil
}

func runStatus(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	pool, err := database.Connect(ctx, cfg.DatabaseURL(), 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	version, dirty, ok, err := database.MigrationVersion(cfg.DatabaseURL())
	if err != nil {
		return err
	}
	if !ok {
		l.Logger.Info("database reachable, no migrations applied")
		return nil
	}

	fields := []zap.Field{zap.Uint("version", version), zap.Bool("dirty", dirty)}
	for _, table := range []string{"users", "conversations", "conversation_participants", "messages"} {
		exists, err := database.TableExists(ctx, pool, table)
		if err != nil {
			return err
		}
		fields = append(fields, zap.Bool(table, exists))
	}
	l.Logger.Info("database status", fields...)
	return nil
}

func runSeed(ctx context.Context, cfg *config.Config, l *logger.Logger) error {
	pool, err := database.Connect(ctx, cfg.DatabaseURL(), 2)
	if err != nil {
		return err
	}
	defer pool.Close()

	users := database.DefaultSeedUsers()
	n, err := database.Seed(ctx, pool, users)
	if err != nil {
		return err
	}
	l.Logger.Info("seed complete", zap.Int("inserted", n), zap.Int("total", len(users)))
	return nil
}

func runToken(cfg *config.Config, username string, ttl time.Duration) error {
	for _, u := range database.DefaultSeedUsers() {
		if u.Username != username {
			continue
		}
		token, err := services.NewAuthService(cfg).IssueAccessToken(u.ID, ttl)
		if err != nil {
			return err
		}
		fmt.Printf("user_id=%s\ntoken=%s\n", u.ID, token)
		return nil
	}
	return fmt.Errorf("unknown development user %q", username)
}
