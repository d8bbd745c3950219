// Command grantadmin sets or clears the admin claim on an account. It talks
// to the database directly and is meant for operators only.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/iliyamo/staymarket/internal/config"
	"github.com/iliyamo/staymarket/internal/database"
	"github.com/iliyamo/staymarket/internal/logging"
	"github.com/iliyamo/staymarket/internal/repository"
	"github.com/iliyamo/staymarket/internal/service"
)

func main() {
	_ = godotenv.Load()
	log := logging.New(os.Getenv("APP_ENV"), os.Getenv("LOG_LEVEL"))
	if err := run(os.Args[1:], log); err != nil {
		log.WithError(err).Error("grantadmin failed")
		os.Exit(1)
	}
}

func run(argv []string, log *logrus.Logger) error {
	var revoke bool
	flagSet := pflag.NewFlagSet("grantadmin", pflag.ContinueOnError)
	flagSet.BoolVar(&revoke, "revoke", false, "remove the admin claim instead of granting it")
	flagSet.BoolP("help", "h", false, "show help")
	if err := flagSet.Parse(argv); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	args := flagSet.Args()
	if len(args) != 1 {
		printHelp(flagSet)
		return fmt.Errorf("expected exactly one <uid-or-email>, got %d", len(args))
	}

	db, err := database.Open(config.LoadDB())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	admins := service.NewAdminService(repository.NewAccountRepo(db), repository.NewUserRepo(db), nil, nil, log, nil)
	op, verb := admins.GrantAdmin, "granted"
	if revoke {
		op, verb = admins.RevokeAdmin, "revoked"
	}
	acc, err := op(ctx, args[0])
	if err != nil {
		return fmt.Errorf("%s: %w", args[0], err)
	}
	log.WithFields(logrus.Fields{"user_id": acc.ID, "email": acc.Email}).Infof("admin %s; existing sessions revoked, the user must sign in again", verb)
	return nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `grantadmin sets the admin claim on an account.

Usage:
  grantadmin <uid-or-email> [--revoke]

An argument containing "@" is looked up as an email address. The change
revokes every outstanding session of the account.

Flags:
%s`, flagSet.FlagUsages())
}
