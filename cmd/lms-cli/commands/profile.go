package commands

import (
	"fmt"
	"sort"
	"strconv"
	"time"

	"snulms/lib/scrapers/lms/profile"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var refresh bool

func init() {
	profileCmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch the profile again instead of using the cached one.")
	coursesCmd.Flags().BoolVar(&refresh, "refresh", false, "Fetch the profile again instead of using the cached one.")
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(coursesCmd)
	rootCmd.AddCommand(userCmd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.DateTime)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func renderUsers(users []profile.User) {
	t := newTable()
	t.AppendHeader(table.Row{"Id", "Name", "Email", "Courses", "First access", "Last access", "Picture"})
	for _, u := range users {
		t.AppendRow(table.Row{
			u.Id,
			u.Name,
			orDash(u.Email),
			len(u.Courses),
			formatTime(u.FirstAccess),
			formatTime(u.LastAccess),
			orDash(u.Picture),
		})
	}
	t.Render()
}

func renderCourses(courses map[int64]string) {
	ids := make([]int64, 0, len(courses))
	for id := range courses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	t := newTable()
	t.AppendHeader(table.Row{"Course id", "Name"})
	for _, id := range ids {
		t.AppendRow(table.Row{id, courses[id]})
	}
	t.AppendFooter(table.Row{"Total", len(courses)})
	t.Render()
}

var profileCmd = &cobra.Command{
	Use:   "profile [--refresh]",
	Short: "Shows the profile of the logged in user.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		err := e.authenticate(cmd.Context())
		if err != nil {
			return err
		}
		user, err := e.client.Profile(cmd.Context(), refresh)
		if err != nil {
			return err
		}
		renderUsers([]profile.User{user})
		return nil
	},
}

var coursesCmd = &cobra.Command{
	Use:   "courses [--refresh]",
	Short: "Lists the courses of the logged in user.",
	RunE: func(cmd *cobra.Command, args []string) error {
		e := getEnv(cmd.Context())
		err := e.authenticate(cmd.Context())
		if err != nil {
			return err
		}
		courses, err := e.client.Courses(cmd.Context(), refresh)
		if err != nil {
			return err
		}
		renderCourses(courses)
		return nil
	},
}

var userCmd = &cobra.Command{
	Use:   "user <id>...",
	Short: "Shows the profiles of the users given as positional arguments.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ids := make([]int64, len(args))
		for i, arg := range args {
			id, err := strconv.ParseInt(arg, 10, 64)
			if err != nil {
				return fmt.Errorf("user id '%s' is not a number", arg)
			}
			ids[i] = id
		}

		e := getEnv(cmd.Context())
		err := e.authenticate(cmd.Context())
		if err != nil {
			return err
		}

		users := make([]profile.User, 0, len(ids))
		for _, id := range ids {
			user, err := e.client.User(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("user %d: %w", id, err)
			}
			users = append(users, user)
		}
		renderUsers(users)
		return nil
	},
}
