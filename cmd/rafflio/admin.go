package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rafflio/platform/internal/auth"
	"github.com/rafflio/platform/internal/infra"
	"github.com/rafflio/platform/internal/repository"
	"github.com/rafflio/platform/internal/service"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Manage console users",
	}

	create := &cobra.Command{
		Use:   "create <email>",
		Short: "Create an admin user",
		Long: `Create an admin user directly in the database. Use it to bootstrap the
first superadmin; later users can be added through the API.

The password is read from --password or the RAFFLIO_ADMIN_PASSWORD
environment variable.`,
		Example: "  rafflio admin create ops@rafflio.com.ar --role superadmin",
		Args:    cobra.ExactArgs(1),
		RunE:    runAdminCreate,
	}
	create.Flags().String("password", "", "password, at least 8 characters")
	create.Flags().String("name", "", "display name")
	create.Flags().String("role", auth.RoleSuperAdmin, "viewer, admin or superadmin")
	cmd.AddCommand(create)

	return cmd
}

func runAdminCreate(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)
	password, _ := cmd.Flags().GetString("password")
	name, _ := cmd.Flags().GetString("name")
	role, _ := cmd.Flags().GetString("role")

	if password == "" {
		password = os.Getenv("RAFFLIO_ADMIN_PASSWORD")
	}
	if password == "" {
		return fmt.Errorf("password required: pass --password or set RAFFLIO_ADMIN_PASSWORD")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	pool, err := infra.NewPostgresPool(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	svc := service.NewAuthService(pool, repository.NewPgAdminUserRepository(), auth.NewJWTManager(cfg.JWTSecret, cfg.AdminTokenExpiry()))
	user, err := svc.CreateAdmin(cmd.Context(), service.CreateAdminInput{
		Email:       args[0],
		Password:    password,
		DisplayName: name,
		Role:        role,
	})
	if err != nil {
		return err
	}

	logger.Info("admin user created", "id", user.ID, "email", user.Email, "role", user.Role)
	fmt.Fprintln(cmd.OutOrStdout(), user.ID)
	return nil
}
