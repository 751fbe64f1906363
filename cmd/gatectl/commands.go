package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/yourusername/estate-admin/internal/auth"
	"github.com/yourusername/estate-admin/internal/guard"
	"github.com/yourusername/estate-admin/internal/session"
)

// errDenied は can-access で拒否されたときに終了コードを 1 にするためのエラーです。
var errDenied = errors.New("access denied")

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "gatectl",
		Short:         "Admin auth gate utilities",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newHashPasswordCmd(),
		newCanAccessCmd(),
		newRoutesCmd(),
		newTryLoginCmd(),
	)
	return root
}

func newHashPasswordCmd() *cobra.Command {
	var (
		password string
		cost     int
	)
	cmd := &cobra.Command{
		Use:   "hash-password",
		Short: "Print a bcrypt hash for APP_PASSWORD_HASH (reads stdin when --password is omitted)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && !errors.Is(err, io.EOF) {
					return fmt.Errorf("failed to read password: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}
			if password == "" {
				return errors.New("password must not be empty")
			}
			hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(hash))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "password to hash")
	cmd.Flags().IntVar(&cost, "cost", bcrypt.DefaultCost, "bcrypt cost")
	return cmd
}

func newCanAccessCmd() *cobra.Command {
	var role, route string
	cmd := &cobra.Command{
		Use:   "can-access",
		Short: "Check the permission table for a role and route",
		RunE: func(cmd *cobra.Command, args []string) error {
			if guard.CanAccessRoute(role, route) {
				fmt.Fprintf(cmd.OutOrStdout(), "allowed: %s -> %s\n", role, route)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "denied: %s -> %s\n", role, route)
			return errDenied
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "role name (admin, SuperAdmin)")
	cmd.Flags().StringVar(&route, "route", "", "route identifier")
	_ = cmd.MarkFlagRequired("role")
	_ = cmd.MarkFlagRequired("route")
	return cmd
}

func newRoutesCmd() *cobra.Command {
	var role string
	cmd := &cobra.Command{
		Use:   "routes",
		Short: "List routes, or the routes a role may use",
		RunE: func(cmd *cobra.Command, args []string) error {
			routes := guard.DefaultTable.Routes()
			if role != "" {
				routes = guard.DefaultTable.AccessibleRoutes(role)
			}
			for _, r := range routes {
				fmt.Fprintln(cmd.OutOrStdout(), r)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&role, "role", "", "only list routes this role may use")
	return cmd
}

func newTryLoginCmd() *cobra.Command {
	var (
		token      string
		username   string
		password   string
		validToken string
	)
	cmd := &cobra.Command{
		Use:   "try-login",
		Short: "Run a login against an in-memory session and print the resulting state",
		RunE: func(cmd *cobra.Command, args []string) error {
			actx := auth.NewContext(auth.ContextOptions{
				Store:         session.NewStore(session.NewMemoryStorage(), nil),
				Authenticator: &auth.MockAuthenticator{ValidToken: validToken},
			})
			actx.Init()

			res := actx.Login(cmd.Context(), auth.Credentials{Token: token, Username: username, Password: password})
			out := map[string]any{
				"result": res,
				"state":  actx.State(),
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return err
			}
			if !res.Success {
				return fmt.Errorf("login failed: %s", res.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "admin token")
	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password")
	cmd.Flags().StringVar(&validToken, "valid-token", "admin-token-123", "token the mock authenticator accepts")
	return cmd
}
