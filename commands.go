package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"titan/internal/api"
	"titan/internal/config"
	"titan/internal/logger"
)

var (
	// Flags
	configPath string
	debug      bool

	app *App
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "titan",
		Short: "Database connection manager",
		Long: `titan keeps database connection profiles, opens sessions against
PostgreSQL, MySQL, SQL Server and SQLite, and records every connect outcome.`,
		Version:       version,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return boot(cmd.Context(), true)
		},
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default ~/.config/titan/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(
		newProfileCmd(),
		newConnectCmd(),
		newHistoryCmd(),
		newRequestCmd(),
	)
	return rootCmd
}

// boot loads config and the logger. The keychain and the metadata store are
// only opened when withStore is set.
func boot(ctx context.Context, withStore bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if debug {
		cfg.LogLevel = "debug"
	}
	if err := logger.Init(cfg.LogLevel, cfg.LogFile); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	app = NewApp(cfg)
	if !withStore {
		app.startupHTTP(ctx)
		return nil
	}
	return app.startup(ctx)
}

// ====================================================================================
// profile
// ====================================================================================

func newProfileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage connection profiles",
	}
	cmd.AddCommand(
		newProfileAddCmd(),
		newProfileListCmd(),
		newProfileShowCmd(),
		newProfileDeleteCmd(),
		newProfileExportCmd(),
		newProfileImportCmd(),
		newProfilePullCmd(),
	)
	return cmd
}

func newProfileAddCmd() *cobra.Command {
	var req ProfileRequest
	var update, test bool

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Create or update a connection profile",
		Long: `Create a connection profile. The password is prompted with hidden input
when --password is not given. With --update only the flags given change the stored
profile.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Name = args[0]
			if update {
				merged, err := overlayProfileFlags(cmd, req)
				if err != nil {
					return err
				}
				req = merged
			}
			if req.Password == "" && !update && term.IsTerminal(int(os.Stdin.Fd())) {
				password, err := promptForPassword(fmt.Sprintf("Password for %s: ", req.Name))
				if err != nil {
					return err
				}
				req.Password = password
			}

			if test {
				resp := app.TestConnection(req)
				if !resp.Success {
					return fmt.Errorf("connection test failed (%s): %s", resp.ErrorKind, resp.Error)
				}
				pterm.Info.Printfln("Connection test passed: %s", resp.ServerVersion)
			}

			if update {
				if err := app.UpdateProfile(args[0], req); err != nil {
					return err
				}
				pterm.Success.Printfln("Profile %s updated", req.Name)
				return nil
			}

			id, err := app.CreateProfile(req)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Profile %s created (%s)", req.Name, id)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Driver, "driver", "postgres", "database driver: postgres, mysql, sqlserver or sqlite")
	cmd.Flags().StringVar(&req.Host, "host", "localhost", "database host")
	cmd.Flags().IntVar(&req.Port, "port", 0, "database port (default depends on driver)")
	cmd.Flags().StringVarP(&req.Username, "user", "u", "", "database user")
	cmd.Flags().StringVarP(&req.Password, "password", "p", "", "database password (prompted when empty)")
	cmd.Flags().StringVarP(&req.Database, "database", "d", "", "database name, or file path for sqlite")
	cmd.Flags().StringVar(&req.SSLMode, "sslmode", "", "postgres sslmode")
	cmd.Flags().BoolVar(&req.SaveToKeychain, "keychain", false, "store the password in the system keychain")
	cmd.Flags().BoolVar(&update, "update", false, "update an existing profile")
	cmd.Flags().BoolVar(&test, "test", false, "test the connection before saving")
	return cmd
}

// overlayProfileFlags starts from the stored profile and applies only the
// flags given on the command line
func overlayProfileFlags(cmd *cobra.Command, req ProfileRequest) (ProfileRequest, error) {
	stored, err := app.profileRequest(req.Name)
	if err != nil {
		return req, err
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		stored.Driver = req.Driver
	}
	if flags.Changed("host") {
		stored.Host = req.Host
	}
	if flags.Changed("port") {
		stored.Port = req.Port
	}
	if flags.Changed("user") {
		stored.Username = req.Username
	}
	if flags.Changed("password") {
		stored.Password = req.Password
	}
	if flags.Changed("database") {
		stored.Database = req.Database
	}
	if flags.Changed("sslmode") {
		stored.SSLMode = req.SSLMode
	}
	if flags.Changed("keychain") {
		stored.SaveToKeychain = req.SaveToKeychain
	}
	return stored, nil
}

func newProfileListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List connection profiles",
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := app.ListProfiles()
			if err != nil {
				return err
			}
			if len(list) == 0 {
				pterm.Info.Println("No profiles yet. Create one with: titan profile add <name>")
				return nil
			}

			data := pterm.TableData{{"NAME", "DRIVER", "ADDRESS", "USER", "DATABASE", "KEYCHAIN"}}
			for _, p := range list {
				data = append(data, []string{
					p.Name, p.Driver, p.Address(), p.User.Username, p.Database, strconv.FormatBool(p.SaveToKeychain),
				})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
}

func newProfileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show one connection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.GetProfile(args[0])
			if err != nil {
				return err
			}
			return printJSON(p)
		},
	}
}

func newProfileDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Delete a connection profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := app.DeleteProfile(args[0]); err != nil {
				return err
			}
			pterm.Success.Printfln("Profile %s deleted", args[0])
			return nil
		},
	}
}

func newProfileExportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export profiles without passwords",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := os.Stdout
			if output != "" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return app.ExportProfiles(out, format)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "yaml", "json or yaml")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func newProfileImportCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import profiles, merging by name",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			if format == "" {
				format = formatFromPath(args[0])
			}
			result, err := app.ImportProfiles(f, format)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Imported profiles: %d created, %d updated", result.Created, result.Updated)
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "", "json or yaml (default from file extension)")
	return cmd
}

func newProfilePullCmd() *cobra.Command {
	var baseURL, team string

	cmd := &cobra.Command{
		Use:   "pull",
		Short: "Pull shared profiles from a remote catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := app.PullProfiles(baseURL, team)
			if err != nil {
				return err
			}
			pterm.Success.Printfln("Pulled profiles: %d created, %d updated", result.Created, result.Updated)
			return nil
		},
	}
	cmd.Flags().StringVar(&baseURL, "base-url", "", "catalogue URL (default api.base_url)")
	cmd.Flags().StringVar(&team, "team", "", "only profiles shared with this team")
	return cmd
}

// ====================================================================================
// connect
// ====================================================================================

func newConnectCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "connect <name>",
		Short: "Connect to the database a profile describes",
		Long: `Connect opens a session and reports the server version. With --keepalive
the session stays open and is pinged on the given cron schedule until interrupted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			keepalive := cmd.Flags().Changed("keepalive")
			spinner, _ := pterm.DefaultSpinner.Start("Connecting to " + args[0])

			resp := app.Connect(ConnectRequest{Profile: args[0], Keepalive: keepalive, Schedule: schedule})
			if !resp.Success {
				spinner.Fail(resp.Error)
				return fmt.Errorf("connect failed: %s", kindOrDefault(resp.ErrorKind))
			}
			spinner.Success(fmt.Sprintf("Connected in %dms: %s", resp.DurationMs, resp.ServerVersion))
			if resp.Error != "" {
				pterm.Warning.Println(resp.Error)
			}

			if !keepalive {
				return app.Disconnect(resp.SessionID)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			pterm.Info.Println("Keeping the session alive, press Ctrl+C to disconnect")
			<-ctx.Done()

			for _, s := range app.Sessions() {
				pterm.Info.Printfln("Session %s: %d keepalive failures", s.SessionID, s.KeepaliveFailures)
			}
			return app.Disconnect(resp.SessionID)
		},
	}
	cmd.Flags().StringVar(&schedule, "keepalive", "", "keep the session open, pinging on this cron schedule (empty uses keepalive.schedule)")
	cmd.Flags().Lookup("keepalive").NoOptDefVal = " "
	return cmd
}

func kindOrDefault(kind string) string {
	if kind == "" {
		return "error"
	}
	return strings.ReplaceAll(kind, "_", " ")
}

// ====================================================================================
// history
// ====================================================================================

func newHistoryCmd() *cobra.Command {
	var limit int
	var profile string
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent connect outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			events, err := app.ListHistory(profile, limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(events)
			}

			data := pterm.TableData{{"AT", "PROFILE", "STATUS", "DURATION", "SUMMARY"}}
			for _, e := range events {
				data = append(data, []string{e.At, e.Profile, e.Status, fmt.Sprintf("%dms", e.DurationMs), e.Summary})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of events")
	cmd.Flags().StringVar(&profile, "profile", "", "only events of this profile")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	return cmd
}

// ====================================================================================
// request
// ====================================================================================

func newRequestCmd() *cobra.Command {
	var (
		method   string
		baseURL  string
		encoding string
		params   map[string]string
		headers  map[string]string
	)

	cmd := &cobra.Command{
		Use:   "request <endpoint>",
		Short: "Send an HTTP request and print the JSON response",
		Args:  cobra.ExactArgs(1),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return boot(cmd.Context(), false)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			enc, err := api.ParseEncoding(encoding)
			if err != nil {
				return err
			}

			req := api.Request{
				Endpoint: args[0],
				Method:   strings.ToUpper(method),
				Headers:  headers,
				Encoding: enc,
			}
			if len(params) > 0 {
				req.Params = make(map[string]interface{}, len(params))
				for k, v := range params {
					req.Params[k] = v
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			value, err := app.Request(ctx, baseURL, req)
			if err != nil {
				var apiErr *api.Error
				if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
					pterm.Error.Printfln("%s %s returned %d", apiErr.Method, apiErr.URL, apiErr.StatusCode)
				}
				return err
			}
			return printJSON(value)
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	cmd.Flags().StringVar(&baseURL, "base-url", "", "base URL (default api.base_url)")
	cmd.Flags().StringVar(&encoding, "encoding", "json", "parameter encoding: json, url or query")
	cmd.Flags().StringToStringVar(&params, "param", nil, "request parameter key=value (repeatable)")
	cmd.Flags().StringToStringVarP(&headers, "header", "H", nil, "request header key=value (repeatable)")
	return cmd
}

// ====================================================================================
// helpers
// ====================================================================================

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// promptForPassword reads a password with hidden input
func promptForPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)

	passwordBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	fmt.Fprintln(os.Stderr)

	return string(passwordBytes), nil
}

func formatFromPath(path string) string {
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		return "json"
	}
	return "yaml"
}
