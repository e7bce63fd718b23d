package cli

import (
	"context"
	"fmt"

	"github.com/go-extras/cobraflags"
	"github.com/spf13/cobra"

	"github.com/platinummonkey/sunup/pkg/models"
	"github.com/platinummonkey/sunup/pkg/tenants"
)

const (
	tenantNameFlag     = "name"
	tenantDomainFlag   = "domain"
	tenantSettingsFlag = "settings"
)

func (a *App) newCreateTenantCommand() *cobra.Command {
	flags := map[string]cobraflags.Flag{
		tenantNameFlag: &cobraflags.StringFlag{
			Name:  tenantNameFlag,
			Value: "",
			Usage: "Tenant display name (required)",
		},
		tenantDomainFlag: &cobraflags.StringFlag{
			Name:  tenantDomainFlag,
			Value: "",
			Usage: "Primary email domain of the tenant",
		},
		tenantSettingsFlag: &cobraflags.StringFlag{
			Name:  tenantSettingsFlag,
			Value: "",
			Usage: "YAML file with the tenant settings, including an optional pipeline stage template",
		},
	}
	var seedStages bool

	cmd := &cobra.Command{
		Use:   "create-tenant",
		Short: "Create a tenant",
		Long: `Create an active tenant.

With --seed-stages the tenant's pipeline is initialized from the stage
template in its settings, or from the configured defaults.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := tenants.NewTenant{
				Name:   flags[tenantNameFlag].GetString(),
				Domain: flags[tenantDomainFlag].GetString(),
			}
			if path := flags[tenantSettingsFlag].GetString(); path != "" {
				settings, err := tenants.LoadSettings(path)
				if err != nil {
					return err
				}
				in.Settings = settings
			}

			return a.withEnv(cmd, func(ctx context.Context, env *Env) error {
				tenant, err := env.Tenants.CreateTenant(ctx, in)
				if err != nil {
					return err
				}
				a.log.WithField("tenant_id", tenant.ID).Infof("Created tenant %q", tenant.Name)

				if seedStages {
					stages, err := env.Pipeline.SeedTenantStages(ctx, tenant.ID)
					if err != nil {
						return fmt.Errorf("tenant %s created but stages were not seeded: %w", tenant.ID, err)
					}
					a.log.WithField("tenant_id", tenant.ID).Infof("Seeded %d pipeline stages", len(stages))
				}
				return printJSON(cmd.OutOrStdout(), tenant)
			})
		},
	}
	cobraflags.RegisterMap(cmd, flags)
	cmd.Flags().BoolVar(&seedStages, "seed-stages", false, "Initialize the tenant's pipeline stages")
	return cmd
}

func (a *App) newListTenantsCommand() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list-tenants",
		Short: "List tenants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withEnv(cmd, func(ctx context.Context, env *Env) error {
				list, err := env.Tenants.ListTenants(ctx, !all)
				if err != nil {
					return err
				}
				rows := make([][]interface{}, 0, len(list))
				for _, t := range list {
					rows = append(rows, []interface{}{t.ID, t.Name, t.Domain, t.IsActive})
				}
				return printTable(cmd.OutOrStdout(), []interface{}{"ID", "NAME", "DOMAIN", "ACTIVE"}, rows)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include inactive tenants")
	return cmd
}

func (a *App) newInitStagesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init-stages <tenant-id>",
		Short: "Seed a tenant's pipeline with its stage template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withEnv(cmd, func(ctx context.Context, env *Env) error {
				stages, err := env.Pipeline.SeedTenantStages(ctx, args[0])
				if err != nil {
					return err
				}
				return printStages(cmd, stages)
			})
		},
	}
}

func printStages(cmd *cobra.Command, stages []models.PipelineStage) error {
	rows := make([][]interface{}, 0, len(stages))
	for _, st := range stages {
		rows = append(rows, []interface{}{st.Order, st.Name, st.Category, st.ID})
	}
	return printTable(cmd.OutOrStdout(), []interface{}{"ORDER", "NAME", "CATEGORY", "ID"}, rows)
}
