package main

import (
	"fmt"
	"os"

	"github.com/anjiri1684/crypto_academy/catalog"
	config "github.com/anjiri1684/crypto_academy/configs"
	"github.com/anjiri1684/crypto_academy/database"
	"github.com/anjiri1684/crypto_academy/logger"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "api",
	Short: "Crypto Academy referral and wallet API",
	Long: `Serves the Crypto Academy API: plans, referral codes, purchases,
referral credits, wallets and withdrawals.

Running without a subcommand is the same as "serve".`,
	SilenceUsage: true,
	RunE:         runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Migrate, seed the admin and start the HTTP server and jobs",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

var plansCmd = &cobra.Command{
	Use:   "plans",
	Short: "Print the effective plan catalog as YAML",
	RunE:  runPlans,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, plansCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// runMigrate reads only the database and logging keys, so it runs without
// the API secrets.
func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadForMigrate()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg)

	db, err := database.Connect(cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	if err := database.Migrate(db); err != nil {
		return err
	}
	log.Info().Msg("database migrated")
	return nil
}

// runPlans needs no secrets, so it reads PLANS_FILE directly.
func runPlans(cmd *cobra.Command, args []string) error {
	cat, err := catalog.LoadFile(os.Getenv("PLANS_FILE"))
	if err != nil {
		return err
	}
	out, err := cat.Marshal()
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(out)
	return err
}
