// Command userctl seeds accounts and revokes outstanding reset secrets.
//
//	userctl create -email alice@example.com -mobile 9876543210 -password 'correct horse'
//	userctl revoke -email alice@example.com
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"asklytics/internal/config"
	"asklytics/internal/db"
	"asklytics/internal/interfaces"
	"asklytics/internal/models"
	"asklytics/internal/repository"
	"asklytics/internal/services"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: userctl <create|revoke> [flags]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	database, err := db.New(ctx, cfg.DatabaseURL, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	users := repository.NewUserRepository(database.DB)
	resets := repository.NewResetRepository(database.DB)

	switch os.Args[1] {
	case "create":
		err = create(ctx, users, cfg.Reset.BcryptCost, os.Args[2:], &logger)
	case "revoke":
		err = revoke(ctx, users, resets, os.Args[2:], &logger)
	default:
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("userctl failed")
	}
}

func create(ctx context.Context, users repository.UserRepository, cost int, args []string, logger *zerolog.Logger) error {
	fs := flag.NewFlagSet("create", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	mobile := fs.String("mobile", "", "account mobile number (optional)")
	password := fs.String("password", "", "initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" || *password == "" {
		return errors.New("-email and -password are required")
	}

	if cost < services.MinBcryptCost {
		cost = services.MinBcryptCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(*password), cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	u := &models.User{Email: *email, PasswordHash: string(hash)}
	if *mobile != "" {
		u.Mobile = mobile
	}
	if err := users.Create(ctx, u); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("account already exists: %w", err)
		}
		return err
	}

	logger.Info().Str("user_id", u.ID).Msg("user created")
	return nil
}

func revoke(ctx context.Context, users interfaces.UserStore, resets interfaces.ResetStore, args []string, logger *zerolog.Logger) error {
	fs := flag.NewFlagSet("revoke", flag.ContinueOnError)
	email := fs.String("email", "", "account email")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *email == "" {
		return errors.New("-email is required")
	}

	u, err := users.GetByEmail(ctx, *email)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", *email, err)
	}
	for _, ch := range []models.Channel{models.ChannelEmailLink, models.ChannelMobileOTP} {
		if err := resets.ClearSecret(ctx, ch, u.ID); err != nil {
			return fmt.Errorf("clear %s secret: %w", ch, err)
		}
	}

	logger.Info().Str("user_id", u.ID).Msg("reset secrets revoked")
	return nil
}
