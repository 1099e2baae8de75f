package main

import (
	"database/sql"
	"errors"
	"fmt"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/wellbeing/core/organization"
	"github.com/trezcool/wellbeing/core/subscription"
	"github.com/trezcool/wellbeing/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errNoPassword = errors.New("a password is required")
)

type commandLine struct {
	db       *sql.DB
	usrRepo  user.Repository
	orgSvc   *organization.Service
	subSvc   *subscription.Service
	validate *validator.Validate
}

// rootCmd builds the admin command tree, bound to cli.
func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Wellbeing administration tasks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var name, email string
	var isAdmin bool
	addUserCmd := &cobra.Command{
		Use:   "adduser",
		Short: "Create or update a user; the password is prompted",
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.addUser(cmd.Context(), name, email, pwd, isAdmin)
		},
	}
	addUserCmd.Flags().StringVar(&name, "name", "", "the user's name")
	addUserCmd.Flags().StringVar(&email, "email", "", "the user's email")
	addUserCmd.Flags().BoolVar(&isAdmin, "admin", false, "grant every platform role")
	_ = addUserCmd.MarkFlagRequired("email")

	var resetEmail string
	resetPasswordCmd := &cobra.Command{
		Use:   "resetpassword",
		Short: "Reset a user's password; the new one is prompted",
		RunE: func(cmd *cobra.Command, args []string) error {
			pwd, err := promptPassword(cmd)
			if err != nil {
				return err
			}
			return cli.resetPassword(cmd.Context(), resetEmail, pwd)
		},
	}
	resetPasswordCmd.Flags().StringVar(&resetEmail, "email", "", "the user's email")
	_ = resetPasswordCmd.MarkFlagRequired("email")

	migrateCmd := &cobra.Command{
		Use:   "migrate COMMAND [ARGS...]",
		Short: "Run a goose migration command (up, down, status, ...)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.migrate(args)
		},
	}

	var search string
	orgsCmd := &cobra.Command{
		Use:   "orgs",
		Short: "List organizations with their plan",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.listOrgs(cmd.Context(), cmd.OutOrStdout(), search)
		},
	}
	orgsCmd.Flags().StringVar(&search, "search", "", "filter on name or slug")

	var orgID, plan, status string
	setPlanCmd := &cobra.Command{
		Use:   "setplan",
		Short: "Change the plan of an organization",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.setPlan(cmd.Context(), cmd.OutOrStdout(), orgID, plan, status)
		},
	}
	setPlanCmd.Flags().StringVar(&orgID, "org", "", "the organization's id")
	setPlanCmd.Flags().StringVar(&plan, "plan", "", "free, pro or enterprise")
	setPlanCmd.Flags().StringVar(&status, "status", "", "the subscription status (default active)")
	_ = setPlanCmd.MarkFlagRequired("org")
	_ = setPlanCmd.MarkFlagRequired("plan")

	root.AddCommand(addUserCmd, resetPasswordCmd, migrateCmd, orgsCmd, setPlanCmd)
	return root
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	root.SetArgs(args)
	return root.Execute()
}

func promptPassword(cmd *cobra.Command) (string, error) {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), "Enter password:")
	pwd, err := readPasswordFunc(int(syscall.Stdin))
	_, _ = fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		return "", errNoPassword
	}
	return string(pwd), nil
}
