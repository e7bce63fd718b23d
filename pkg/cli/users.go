package cli

import (
	"context"
	"strings"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/sunup/pkg/auth"
	"github.com/platinummonkey/sunup/pkg/users"
)

const (
	inviteTenantFlag    = "tenant-id"
	inviteEmailFlag     = "email"
	inviteFirstNameFlag = "first-name"
	inviteLastNameFlag  = "last-name"
	inviteRolesFlag     = "roles"

	claimEmailFlag      = "claim-email"
	claimGivenNameFlag  = "given-name"
	claimFamilyNameFlag = "family-name"
)

func (a *App) newInviteUserCommand() *cobra.Command {
	flags := map[string]cobraflags.Flag{
		inviteTenantFlag: &cobraflags.StringFlag{
			Name:  inviteTenantFlag,
			Value: "",
			Usage: "Tenant the user belongs to (required)",
		},
		inviteEmailFlag: &cobraflags.StringFlag{
			Name:  inviteEmailFlag,
			Value: "",
			Usage: "Email address the identity provider will assert",
		},
		inviteFirstNameFlag: &cobraflags.StringFlag{
			Name:  inviteFirstNameFlag,
			Value: "",
			Usage: "First name",
		},
		inviteLastNameFlag: &cobraflags.StringFlag{
			Name:  inviteLastNameFlag,
			Value: "",
			Usage: "Last name",
		},
		inviteRolesFlag: &cobraflags.StringFlag{
			Name:  inviteRolesFlag,
			Value: "",
			Usage: `Comma-separated role names; the first is primary (default "Setter")`,
		},
	}

	cmd := &cobra.Command{
		Use:   "invite-user",
		Short: "Create a pending user in a tenant",
		Long: `Create a pending user. The user can sign in once provision-user has bound
the subject issued by the identity provider.

This is how the first System Administrator of a tenant is created.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := users.NewUser{
				TenantID:  flags[inviteTenantFlag].GetString(),
				Email:     flags[inviteEmailFlag].GetString(),
				FirstName: flags[inviteFirstNameFlag].GetString(),
				LastName:  flags[inviteLastNameFlag].GetString(),
				Roles:     splitRoles(flags[inviteRolesFlag].GetString()),
			}
			return a.withEnv(cmd, func(ctx context.Context, env *Env) error {
				user, err := env.Users.InviteUser(ctx, in)
				if err != nil {
					return err
				}
				a.log.WithField("user_id", user.ID).Infof("Invited %s", user.Email)
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func (a *App) newProvisionUserCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "provision-user <email> <subject>",
		Short: "Bind an identity subject to an invited user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEnv(cmd, func(ctx context.Context, env *Env) error {
				user, err := env.Users.ProvisionUser(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				a.log.WithField("user_id", user.ID).Infof("Provisioned %s", user.Email)
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
}

func (a *App) newSyncProfileCommand() *cobra.Command {
	flags := map[string]cobraflags.Flag{
		claimEmailFlag: &cobraflags.StringFlag{
			Name:  claimEmailFlag,
			Value: "",
			Usage: "Email claim",
		},
		claimGivenNameFlag: &cobraflags.StringFlag{
			Name:  claimGivenNameFlag,
			Value: "",
			Usage: "Given name claim",
		},
		claimFamilyNameFlag: &cobraflags.StringFlag{
			Name:  claimFamilyNameFlag,
			Value: "",
			Usage: "Family name claim",
		},
	}

	cmd := &cobra.Command{
		Use:   "sync-profile <subject>",
		Short: "Copy identity claims onto the user bound to subject",
		Long: `Copy identity claims onto the user bound to subject. Claims left empty keep
the stored value.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			identity := &auth.Identity{
				Subject:   args[0],
				Email:     flags[claimEmailFlag].GetString(),
				FirstName: flags[claimGivenNameFlag].GetString(),
				LastName:  flags[claimFamilyNameFlag].GetString(),
			}
			return a.withEnv(cmd, func(ctx context.Context, env *Env) error {
				user, err := env.Users.SyncProfile(ctx, identity)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), user)
			})
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	return cmd
}

func splitRoles(s string) []string {
	var roles []string
	for _, r := range strings.Split(s, ",") {
		if r = strings.TrimSpace(r); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}
