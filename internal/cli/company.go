package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/flexiql/internal/store"
)

// CompanyInfo is one registered company for JSON output.
type CompanyInfo struct {
	ID        int64     `json:"id"`
	DBName    string    `json:"db_name"`
	Name      string    `json:"name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCompanyCommand creates the company command group.
func NewCompanyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "company",
		Short: "Manage registered company databases",
		Long: `Companies scope every query and shadow record. A company must be
registered before it can be selected with --company.`,
	}

	cmd.AddCommand(newCompanyAddCommand(rootOpts))
	cmd.AddCommand(newCompanyListCommand(rootOpts))
	cmd.AddCommand(newCompanyRemoveCommand(rootOpts))
	return cmd
}

func newCompanyAddCommand(rootOpts *RootOptions) *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:           "add <db-name>",
		Short:         "Register a company database",
		Example:       `  flexiql company add demo_s_r_o_ --name "Demo s.r.o."`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, cmd, rootOpts, needStore)
			if err != nil {
				return out.Fail("add company", err)
			}
			defer a.Close()

			c, err := a.store.AddCompany(ctx, args[0], name)
			if err != nil {
				return out.Fail("add company", err)
			}
			if out.Format == "json" {
				return out.Success(companyInfo(c))
			}
			return out.Success(fmt.Sprintf("registered company %s (id %d)", c.DBName, c.ID))
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	return cmd
}

func newCompanyListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered companies",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, cmd, rootOpts, needStore)
			if err != nil {
				return out.Fail("list companies", err)
			}
			defer a.Close()

			companies, err := a.store.Companies(ctx)
			if err != nil {
				return out.Fail("list companies", err)
			}
			infos := make([]CompanyInfo, 0, len(companies))
			rows := make([][]string, 0, len(companies))
			for _, c := range companies {
				infos = append(infos, companyInfo(c))
				rows = append(rows, []string{
					strconv.FormatInt(c.ID, 10), c.DBName, c.Name, c.CreatedAt.Format(time.RFC3339),
				})
			}
			return out.Table([]string{"ID", "DB NAME", "NAME", "CREATED"}, rows, infos)
		},
	}
}

func newCompanyRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "remove <db-name>",
		Short:         "Unregister a company and drop its shadow records",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			ctx := commandContext(cmd)

			a, err := openApp(ctx, cmd, rootOpts, needStore)
			if err != nil {
				return out.Fail("remove company", err)
			}
			defer a.Close()

			if err := a.store.RemoveCompany(ctx, args[0]); err != nil {
				return out.Fail("remove company", err)
			}
			return out.Success(fmt.Sprintf("removed company %s", args[0]))
		},
	}
}

func companyInfo(c store.Company) CompanyInfo {
	return CompanyInfo{ID: c.ID, DBName: c.DBName, Name: c.Name, CreatedAt: c.CreatedAt}
}
