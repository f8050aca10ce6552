package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"resume-matcher/internal/config"
	"resume-matcher/internal/domain"
	"resume-matcher/internal/service"
)

// withUserService loads config, opens the store and runs fn against a user
// service that needs no identity provider.
func withUserService(ctx context.Context, fn func(service.UserService) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	st, err := openStores(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer st.close()

	users := service.NewUserService(service.UserServiceOptions{
		Ledger:   service.NewQuotaLedger(st.users, st.analyses, nil),
		Users:    st.users,
		Analyses: st.analyses,
		Demo:     demoIdentity(cfg),
		Logger:   logger,
	})
	return fn(users)
}

func newResetUsageCmd() *cobra.Command {
	var subject string
	cmd := &cobra.Command{
		Use:   "reset-usage",
		Short: "Reset a user's analysis counter and restart the usage window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withUserService(cmd.Context(), func(users service.UserService) error {
				user, err := users.ResetUsage(cmd.Context(), subject)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "reset usage for %s (tier %s)\n", user.Subject, user.Tier)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&subject, "subject", "s", service.DefaultDemoSubject, "external subject id of the user")
	return cmd
}

func newSetTierCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-tier <subject> <tier>",
		Short: "Change a user's subscription tier (free, pro, career_plus)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := domain.ParseTier(args[1])
			if err != nil {
				return err
			}
			return withUserService(cmd.Context(), func(users service.UserService) error {
				user, err := users.SetTier(cmd.Context(), args[0], tier)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s is now on %s\n", user.Subject, user.Tier)
				return nil
			})
		},
	}
}
