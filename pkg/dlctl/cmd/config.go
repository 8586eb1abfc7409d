package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/telekom/dlctl/pkg/dlctl/auth"
	"github.com/telekom/dlctl/pkg/dlctl/config"
	"github.com/telekom/dlctl/pkg/dlctl/output"
)

func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage dlctl configuration",
	}

	cmd.AddCommand(
		newConfigInitCommand(),
		newConfigViewCommand(),
		newConfigProfilesCommand(),
		newConfigCurrentProfileCommand(),
		newConfigUseProfileCommand(),
		newConfigSetProfileCommand(),
		newConfigDeleteProfileCommand(),
		newConfigSetValueCommand(),
	)

	return cmd
}

type profileFlags struct {
	loginURL         string
	defaultLoginURL  string
	issuer           string
	authorizationURL string
	tokenURL         string
	deviceURL        string
	clientID         string
	clientSecretEnv  string
	clientSecretFile string
	scope            string
	flow             string
	callbackPort     int
	redirectPath     string
	timeoutSeconds   int
	deviceGrantType  string
	noFallback       bool
	caFile           string
	insecure         bool
}

func (f *profileFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.loginURL, "login-url", "", "Login base URL, e.g. https://login.salesforce.com")
	cmd.Flags().StringVar(&f.defaultLoginURL, "default-login-url", "", "Login base URL the device flow retries when login-url fails (default "+auth.DefaultLoginURL+")")
	cmd.Flags().StringVar(&f.issuer, "issuer", "", "OIDC issuer used to discover endpoints")
	cmd.Flags().StringVar(&f.authorizationURL, "authorization-url", "", "Authorization endpoint")
	cmd.Flags().StringVar(&f.tokenURL, "token-url", "", "Token endpoint")
	cmd.Flags().StringVar(&f.deviceURL, "device-authorization-url", "", "Device authorization endpoint (defaults to the token endpoint)")
	cmd.Flags().StringVar(&f.clientID, "client-id", "", "Connected app consumer key")
	cmd.Flags().StringVar(&f.clientSecretEnv, "client-secret-env", "", "Environment variable holding the client secret")
	cmd.Flags().StringVar(&f.clientSecretFile, "client-secret-file", "", "File holding the client secret")
	cmd.Flags().StringVar(&f.scope, "scope", "", "OAuth scope")
	cmd.Flags().StringVar(&f.flow, "flow", "", "Flow to use: auto, pkce, server, device")
	cmd.Flags().IntVar(&f.callbackPort, "callback-port", 0, "Loopback port for the redirect listener")
	cmd.Flags().StringVar(&f.redirectPath, "redirect-path", "", "Path of the redirect URI")
	cmd.Flags().IntVar(&f.timeoutSeconds, "timeout", 0, "Login timeout in seconds")
	cmd.Flags().StringVar(&f.deviceGrantType, "device-grant-type", "", "Device grant type: device or "+auth.GrantTypeDeviceCode)
	cmd.Flags().BoolVar(&f.noFallback, "no-fallback", false, "Do not fall back to the next flow on network or protocol errors")
	cmd.Flags().StringVar(&f.caFile, "ca-file", "", "CA bundle for the authorization server")
	cmd.Flags().BoolVar(&f.insecure, "insecure-skip-tls-verify", false, "Skip TLS verification")
}

// apply copies the flags the user set onto the profile.
func (f *profileFlags) apply(cmd *cobra.Command, p *config.Profile) {
	changed := cmd.Flags().Changed
	setString := func(name string, dst *string, value string) {
		if changed(name) {
			*dst = value
		}
	}
	setString("login-url", &p.LoginURL, f.loginURL)
	setString("default-login-url", &p.DefaultLoginURL, f.defaultLoginURL)
	setString("issuer", &p.Issuer, f.issuer)
	setString("authorization-url", &p.AuthorizationURL, f.authorizationURL)
	setString("token-url", &p.TokenURL, f.tokenURL)
	setString("device-authorization-url", &p.DeviceAuthorizationURL, f.deviceURL)
	setString("client-id", &p.ClientID, f.clientID)
	setString("client-secret-env", &p.ClientSecretEnv, f.clientSecretEnv)
	setString("client-secret-file", &p.ClientSecretFile, f.clientSecretFile)
	setString("scope", &p.Scope, f.scope)
	setString("flow", &p.Flow, f.flow)
	setString("redirect-path", &p.RedirectPath, f.redirectPath)
	setString("device-grant-type", &p.DeviceGrantType, f.deviceGrantType)
	setString("ca-file", &p.CAFile, f.caFile)
	if changed("callback-port") {
		p.CallbackPort = f.callbackPort
	}
	if changed("timeout") {
		p.TimeoutSeconds = f.timeoutSeconds
	}
	if changed("no-fallback") {
		fallback := !f.noFallback
		p.Fallback = &fallback
	}
	if changed("insecure-skip-tls-verify") {
		p.InsecureSkipTLS = f.insecure
	}
}

func newConfigInitCommand() *cobra.Command {
	var (
		profileName string
		force       bool
		flags       profileFlags
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a dlctl config file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			path := rt.configPathValue()
			if !force {
				if _, err := os.Stat(path); err == nil {
					return fmt.Errorf("config already exists: %s", path)
				}
			}
			if profileName == "" {
				profileName = "default"
			}
			profile := config.Profile{Name: profileName}
			flags.apply(cmd, &profile)
			if profile.LoginURL == "" && profile.Issuer == "" && profile.AuthorizationURL == "" {
				profile.LoginURL = auth.DefaultLoginURL
			}
			if err := profile.Validate(); err != nil {
				return err
			}
			cfg := config.DefaultConfig()
			cfg.CurrentProfile = profileName
			cfg.Profiles = append(cfg.Profiles, profile)
			if err := config.Save(path, &cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Initialized config at %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&profileName, "profile-name", "default", "Profile name")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")
	flags.register(cmd)

	_ = cmd.MarkFlagRequired("client-id")
	return cmd
}

func newConfigViewCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "view",
		Short: "Show the current configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			return output.WriteObject(rt.Writer(), output.FormatYAML, rt.cfg)
		},
	}
}

func newConfigProfilesCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "get-profiles",
		Aliases: []string{"profiles"},
		Short:   "List configured profiles",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			format, err := rt.OutputFormat()
			if err != nil {
				return err
			}
			if format != output.FormatTable {
				return output.WriteObject(rt.Writer(), format, rt.cfg.Profiles)
			}
			output.WriteProfileTable(rt.Writer(), rt.cfg.Profiles, rt.cfg.CurrentProfileOrDefault())
			return nil
		},
	}
}

func newConfigCurrentProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "current-profile",
		Short: "Show the current profile",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(rt.Writer(), rt.cfg.CurrentProfileOrDefault())
			return nil
		},
	}
}

func newConfigUseProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "use-profile NAME",
		Aliases: []string{"use"},
		Short:   "Set the default profile",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			name := args[0]
			if _, err := rt.cfg.FindProfile(name); err != nil {
				return err
			}
			rt.cfg.CurrentProfile = name
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "%s\n", name)
			return nil
		},
	}
}

func newConfigSetProfileCommand() *cobra.Command {
	var flags profileFlags
	cmd := &cobra.Command{
		Use:   "set-profile NAME",
		Short: "Create or update a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			profile := config.Profile{Name: args[0]}
			if existing, err := rt.cfg.FindProfile(args[0]); err == nil {
				profile = *existing
			}
			flags.apply(cmd, &profile)
			if err := profile.Validate(); err != nil {
				return err
			}
			rt.cfg.UpsertProfile(profile)
			if rt.cfg.CurrentProfile == "" {
				rt.cfg.CurrentProfile = profile.Name
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Profile %s saved\n", profile.Name)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newConfigDeleteProfileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete-profile NAME",
		Short: "Delete a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			if err := rt.cfg.DeleteProfile(args[0]); err != nil {
				return err
			}
			if err := config.Save(rt.configPathValue(), rt.cfg); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rt.Writer(), "Deleted profile %s\n", args[0])
			return nil
		},
	}
}

func newConfigSetValueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Set a configuration value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := getRuntime(cmd)
			if err != nil {
				return err
			}
			if err := rt.EnsureConfigLoaded(); err != nil {
				return err
			}
			key := args[0]
			value := args[1]
			switch key {
			case "settings.output-format":
				if _, err := output.ParseFormat(value); err != nil {
					return err
				}
				rt.cfg.Settings.OutputFormat = value
			case "settings.token-storage":
				if value != auth.StorageFile && value != auth.StorageKeychain {
					return fmt.Errorf("invalid token storage: %s", value)
				}
				rt.cfg.Settings.TokenStorage = value
			case "settings.log-level":
				rt.cfg.Settings.LogLevel = value
			case "profile.timeout-seconds":
				seconds, err := strconv.Atoi(value)
				if err != nil || seconds < 0 {
					return fmt.Errorf("invalid timeout: %s", value)
				}
				profile, err := rt.ResolveProfile()
				if err != nil {
					return err
				}
				profile.TimeoutSeconds = seconds
			default:
				return fmt.Errorf("unsupported key: %s", key)
			}
			return config.Save(rt.configPathValue(), rt.cfg)
		},
	}
}
