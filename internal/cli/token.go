package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/NDI05/ums-dental-platform-sub001/internal/auth"
	"github.com/NDI05/ums-dental-platform-sub001/internal/domain"
	"github.com/spf13/cobra"
)

// NewTokenCmd prints a bearer token signed with the configured secret, for local
// development against the API.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging(cmd)
			v := viperForCmd(cmd)
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			if cfg.Auth.Secret == "" {
				return errors.New("auth secret not configured")
			}

			role := domain.Role(v.GetString("role"))
			switch role {
			case domain.RoleStudent, domain.RoleTeacher, domain.RoleAdmin:
			default:
				return fmt.Errorf("unknown role %q", role)
			}

			token, err := auth.NewVerifier(cfg.Auth.Secret).Issue(domain.Identity{
				UserID: v.GetString("user"),
				Role:   role,
				Name:   v.GetString("name"),
				Avatar: v.GetString("avatar"),
			}, v.GetDuration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().String("user", "", "user id (token subject)")
	cmd.Flags().String("role", string(domain.RoleStudent), "role: student, teacher or admin")
	cmd.Flags().String("name", "", "display name")
	cmd.Flags().String("avatar", "", "avatar reference")
	cmd.Flags().Duration("ttl", 8*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
