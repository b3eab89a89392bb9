package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"maihome-survey-service/internal/app"
	"maihome-survey-service/internal/auth"
	"maihome-survey-service/internal/config"
	"maihome-survey-service/internal/infra/postgres"
	"maihome-survey-service/internal/infra/webpush"
	"maihome-survey-service/internal/logging"
)

// NewHouseCmd groups house administration commands.
func NewHouseCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "house",
		Short: "Manage house accounts",
	}

	var houseID, password, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a house account in the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return createHouse(cmd.Context(), *configPath, houseID, password, name, cmd)
		},
	}
	create.Flags().StringVar(&houseID, "id", "", "external house id used to log in")
	create.Flags().StringVar(&password, "password", "", "initial password")
	create.Flags().StringVar(&name, "name", "", "display name")
	_ = create.MarkFlagRequired("id")
	_ = create.MarkFlagRequired("password")

	cmd.AddCommand(create)
	return cmd
}

func createHouse(ctx context.Context, configPath, houseID, password, name string, cmd *cobra.Command) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return errors.New("postgres url not configured")
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	houses := app.NewHouseService(postgres.NewHouseRepository(pool), auth.NewHasher(cfg.Auth.BcryptCost),
		postgres.NewSubscriptionStore(pool), log)
	h, err := houses.Create(ctx, houseID, password, name)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "created house %s (id %s)\n", h.HouseID, h.ID)
	return nil
}

// NewVAPIDCmd groups VAPID key commands.
func NewVAPIDCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vapid",
		Short: "Manage web push VAPID keys",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "generate",
		Short: "Print a new VAPID key pair as environment variables",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, priv, err := webpush.GenerateKeys()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "VAPID_PUBLIC_KEY=%s\nVAPID_PRIVATE_KEY=%s\n", pub, priv)
			return nil
		},
	})
	return cmd
}

// NewHashPasswordCmd prints a bcrypt hash, e.g. for ADMIN_PASSWORD_HASH.
// The password comes from the first argument or the first line of stdin.
func NewHashPasswordCmd() *cobra.Command {
	var cost int
	cmd := &cobra.Command{
		Use:   "hash-password [password]",
		Short: "Print the bcrypt hash of a password",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var password string
			if len(args) == 1 {
				password = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password is empty")
			}
			hash, err := auth.NewHasher(cost).Hash(password)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
	cmd.Flags().IntVar(&cost, "cost", auth.DefaultCost, "bcrypt cost")
	return cmd
}

func dirOf(path string) string {
	dir := filepath.Dir(path)
	if dir == "" {
		return "."
	}
	return dir
}
