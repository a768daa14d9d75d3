package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/crev/internal/models"
	"github.com/joescharf/crev/internal/output"
	"github.com/joescharf/crev/internal/review"
)

var (
	userRole   string
	userSecret string
)

// secretReader supplies a password when --secret is omitted, replaceable in tests.
var secretReader io.Reader = os.Stdin

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage reviewer accounts",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

var userAddCmd = &cobra.Command{
	Use:   "add <username>",
	Short: "Create a user",
	Long: `Create a developer or lead account.

Without --secret the password is read from the first line of stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return userAddRun(args[0])
	},
}

var userListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List users",
	RunE: func(cmd *cobra.Command, args []string) error {
		return userListRun()
	},
}

func init() {
	userAddCmd.Flags().StringVar(&userRole, "role", string(models.RoleDeveloper), "Role: developer, lead")
	userAddCmd.Flags().StringVar(&userSecret, "secret", "", "Password for the new user")

	userCmd.AddCommand(userAddCmd)
	userCmd.AddCommand(userListCmd)
	rootCmd.AddCommand(userCmd)
}

func userAddRun(username string) error {
	role := models.Role(userRole)
	if !role.Valid() {
		return fmt.Errorf("invalid role %q (use developer or lead)", userRole)
	}

	secret := userSecret
	if secret == "" {
		fmt.Fprintf(ui.ErrOut, "Password for %s: ", username)
		line, err := bufio.NewReader(secretReader).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read password: %w", err)
		}
		secret = strings.TrimRight(line, "\r\n")
	}

	if dryRun {
		ui.DryRunMsg("Would create %s %s", role, username)
		return nil
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	u, err := svc.CreateUser(context.Background(), username, secret, role)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	ui.Success("Created %s %s (%s)", u.Role, output.Cyan(u.Username), output.ShortID(u.ID))
	return nil
}

func userListRun() error {
	svc, err := newService()
	if err != nil {
		return err
	}

	users, err := svc.ListUsers(context.Background())
	if err != nil {
		return err
	}
	if len(users) == 0 {
		ui.Info("No users found. Add one with 'crev user add'.")
		return nil
	}

	table := ui.Table([]string{"ID", "Username", "Role", "Created"})
	for _, u := range users {
		_ = table.Append([]string{
			output.ShortID(u.ID),
			u.Username,
			string(u.Role),
			u.CreatedAt.Format(time.DateOnly),
		})
	}
	_ = table.Render()
	return nil
}

// currentSession logs in as auth.username / auth.password. With no username
// configured the session is anonymous.
func currentSession(ctx context.Context, svc *review.Service) (models.Session, error) {
	username := viper.GetString("auth.username")
	if username == "" {
		return models.Anonymous(), nil
	}
	sess, err := svc.Login(ctx, username, viper.GetString("auth.password"))
	if err != nil {
		return sess, fmt.Errorf("login as %s: %w", username, err)
	}
	ui.VerboseLog("Acting as %s (%s)", sess.User.Username, sess.User.Role)
	return sess, nil
}
