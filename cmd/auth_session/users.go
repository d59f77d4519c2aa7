package main

import (
	"auth_session/internal/auth"
	"auth_session/internal/config"
	"auth_session/internal/models"
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

func createUserCmd(configPath *string) *cobra.Command {
	var (
		creds models.SignUpCredentials
		role  string
	)

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user, e.g. the first admin",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireConfigPath(*configPath); err != nil {
				return err
			}
			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}

			cfg := config.MustLoadConfig(*configPath)
			lgr := setupLogger(cfg.Env)

			ctx := cmd.Context()

			a, err := newApp(ctx, cfg, lgr)
			if err != nil {
				return err
			}
			defer a.Close()

			user, err := a.service.RegisterWithRole(ctx, creds, r)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created %s user %s (%s)\n", user.Role, user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&creds.Email, "email", "", "user email")
	cmd.Flags().StringVar(&creds.Password, "password", "", "user password")
	cmd.Flags().StringVar(&creds.Name, "name", "", "display name")
	cmd.Flags().StringVar(&role, "role", string(models.RoleUser), "user role (user, admin)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}

// hashPasswordCmd reads the password from stdin so it stays out of shell history.
func hashPasswordCmd() *cobra.Command {
	var cost int

	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash of the password read from stdin",
		RunE: func(cmd *cobra.Command, args []string) error {
			hasher, err := auth.NewPasswordHasher(cost)
			if err != nil {
				return err
			}

			password, err := readPassword(cmd.InOrStdin())
			if err != nil {
				return err
			}

			hash, err := hasher.Hash(password)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}

	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")

	return cmd
}

func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}

	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("empty password")
	}
	return password, nil
}
