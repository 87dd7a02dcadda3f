package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tbourn/teamhub/internal/apperr"
	"github.com/tbourn/teamhub/internal/sysutil"
	"github.com/tbourn/teamhub/internal/teamapi"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		password string
		noSave   bool
	)
	cmd := &cobra.Command{
		Use:   "login EMAIL",
		Short: "Log in and store the token in the config file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pw := sysutil.FirstNonEmpty(password, os.Getenv("TEAMCTL_PASSWORD"))
			if pw == "" {
				return apperr.Validation("password is required (--password or TEAMCTL_PASSWORD)", map[string]any{apperr.MetaField: "password"})
			}
			l, err := unwrap(a.api.Login(cmd.Context(), args[0], pw))
			if err != nil {
				return err
			}
			if noSave {
				fmt.Fprintln(a.out, l.Token)
				return nil
			}
			fc, err := readFileConfig(a.flags.configPath)
			if err != nil {
				return err
			}
			fc.Token = l.Token
			if fc.Server == "" {
				fc.Server = a.api.HTTP().BaseURL()
			}
			if err := writeFileConfig(a.flags.configPath, fc); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "logged in as %s until %s\n", a.api.Session().UserID(), l.ExpiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "account password (default TEAMCTL_PASSWORD)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "print the token instead of saving it")
	return cmd
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the current token and forget it",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := unwrap(a.api.Logout(cmd.Context())); err != nil {
				return err
			}
			fc, err := readFileConfig(a.flags.configPath)
			if err != nil {
				return err
			}
			if fc.Token != "" {
				fc.Token = ""
				if err := writeFileConfig(a.flags.configPath, fc); err != nil {
					return err
				}
			}
			fmt.Fprintln(a.out, "logged out")
			return nil
		},
	}
}

func newHealthCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API is up",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := unwrap(a.api.Health(cmd.Context()))
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, h.Status)
			return nil
		},
	}
}

func addPageFlags(cmd *cobra.Command, o *teamapi.ListOptions) {
	cmd.Flags().IntVar(&o.Page, "page", 0, "page number (server default 1)")
	cmd.Flags().IntVar(&o.PageSize, "page-size", 0, "items per page (server default 20)")
}

func newTeamsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "teams", Short: "Manage teams"}

	var page teamapi.ListOptions
	list := &cobra.Command{
		Use:   "list",
		Short: "List teams",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := unwrap(a.api.ListTeams(cmd.Context(), page))
			if err != nil {
				return err
			}
			printTeams(a.out, p.Teams...)
			printPagination(a.out, p.Pagination)
			return nil
		},
	}
	addPageFlags(list, &page)

	var createDesc string
	create := &cobra.Command{
		Use:   "create NAME",
		Short: "Create a team you own",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := unwrap(a.api.CreateTeam(cmd.Context(), teamapi.TeamInput{Name: args[0], Description: createDesc}))
			if err != nil {
				return err
			}
			printTeams(a.out, t)
			return nil
		},
	}
	create.Flags().StringVar(&createDesc, "description", "", "team description")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one team",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := unwrap(a.api.GetTeam(cmd.Context(), args[0]))
			if err != nil {
				return err
			}
			printTeams(a.out, t)
			return nil
		},
	}

	var renameDesc string
	rename := &cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a team, keeping its description unless --description is set",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := teamapi.TeamInput{Name: args[1], Description: renameDesc}
			if !cmd.Flags().Changed("description") {
				cur, err := unwrap(a.api.GetTeam(cmd.Context(), args[0]))
				if err != nil {
					return err
				}
				in.Description = cur.Description
			}
			t, err := unwrap(a.api.UpdateTeam(cmd.Context(), args[0], in))
			if err != nil {
				return err
			}
			printTeams(a.out, t)
			return nil
		},
	}
	rename.Flags().StringVar(&renameDesc, "description", "", "new description")

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an empty team",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := unwrap(a.api.DeleteTeam(cmd.Context(), args[0])); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted team %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, get, rename, del)
	return cmd
}

func newUsersCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{Use: "users", Short: "Manage users"}

	var (
		page   teamapi.ListOptions
		teamID string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List users",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := unwrap(a.api.ListUsers(cmd.Context(), teamID, page))
			if err != nil {
				return err
			}
			printUsers(a.out, p.Users...)
			printPagination(a.out, p.Pagination)
			return nil
		},
	}
	addPageFlags(list, &page)
	list.Flags().StringVar(&teamID, "team", "", "only members of this team ID")

	var in teamapi.UserInput
	var createTeam string
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a user",
		Args:  exactArgs(0),
		RunE: func(cmd *cobra.Command, _ []string) error {
			if createTeam != "" {
				in.TeamID = &createTeam
			}
			if in.Password == "" {
				in.Password = os.Getenv("TEAMCTL_PASSWORD")
			}
			u, err := unwrap(a.api.CreateUser(cmd.Context(), in))
			if err != nil {
				return err
			}
			printUsers(a.out, u)
			return nil
		},
	}
	create.Flags().StringVar(&in.Email, "email", "", "email address")
	create.Flags().StringVar(&in.Name, "name", "", "display name")
	create.Flags().StringVar(&in.Password, "password", "", "password (default TEAMCTL_PASSWORD)")
	create.Flags().StringVar(&createTeam, "team", "", "team ID to join")

	get := &cobra.Command{
		Use:   "get ID",
		Short: "Show one user",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := unwrap(a.api.GetUser(cmd.Context(), args[0]))
			if err != nil {
				return err
			}
			printUsers(a.out, u)
			return nil
		},
	}

	del := &cobra.Command{
		Use:   "delete ID",
		Short: "Delete your own account",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := unwrap(a.api.DeleteUser(cmd.Context(), args[0])); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "deleted user %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(list, create, get, del)
	return cmd
}

func printTeams(w io.Writer, teams ...teamapi.Team) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tNAME\tOWNER\tDESCRIPTION")
	for _, t := range teams {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t.ID, t.Name, t.OwnerID, t.Description)
	}
	_ = tw.Flush()
}

func printUsers(w io.Writer, users ...teamapi.User) {
	tw := tabwriter.NewWriter(w, 0, 0, 3, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tEMAIL\tNAME\tTEAM")
	for _, u := range users {
		team := "-"
		if u.TeamID != nil {
			team = *u.TeamID
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", u.ID, u.Email, u.Name, team)
	}
	_ = tw.Flush()
}

func printPagination(w io.Writer, p teamapi.Pagination) {
	more := ""
	if p.HasNext {
		more = ", more available"
	}
	_, _ = fmt.Fprintf(w, "page %d/%d (%d total%s)\n", p.Page, p.TotalPages, p.Total, more)
}
