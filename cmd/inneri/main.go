package main

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/inneri/gateway/pkg/agentkey"
	"github.com/inneri/gateway/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden via -ldflags "-X main.version=...".
var version = "dev"

var (
	gatewayURL string
	cfgFile    string
	agentID    string
	keyPath    string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "inneri",
	Short: "InnerI gateway CLI",
	Long: `inneri is the command-line interface for the InnerI agent gateway.

It registers agents, runs the Ed25519 challenge-response handshake, and
dispatches policy-mediated secure calls against a gateway instance.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			viper.AddConfigPath(configDir())
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if gatewayURL == "" {
			gatewayURL = viper.GetString("gateway_url")
		}
		if gatewayURL == "" {
			gatewayURL = "http://localhost:8080"
		}
		if keyPath == "" {
			keyPath = filepath.Join(configDir(), "agent.key")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.inneri/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&gatewayURL, "gateway", "", "gateway base URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&agentID, "id", "", "agent ID")
	rootCmd.PersistentFlags().StringVar(&keyPath, "key", "", "Ed25519 private key file (default ~/.inneri/agent.key)")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(callCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(reputationCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".inneri")
}

// ── keygen ───────────────────────────────────────────────────────────────────

var keygenForce bool

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an Ed25519 keypair for agent identity",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := os.Stat(keyPath); err == nil && !keygenForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", keyPath)
		}

		pub, priv, err := agentkey.GenerateKeypair()
		if err != nil {
			return err
		}
		privPEM, err := agentkey.MarshalPrivateKeyPEM(priv)
		if err != nil {
			return err
		}
		pubPEM, err := agentkey.MarshalPublicKeyPEM(pub)
		if err != nil {
			return err
		}

		if err := os.MkdirAll(filepath.Dir(keyPath), 0o700); err != nil {
			return err
		}
		if err := os.WriteFile(keyPath, []byte(privPEM), 0o600); err != nil {
			return err
		}
		pubPath := strings.TrimSuffix(keyPath, filepath.Ext(keyPath)) + ".pub"
		if err := os.WriteFile(pubPath, []byte(pubPEM), 0o644); err != nil {
			return err
		}

		fmt.Printf("private key: %s\n", keyPath)
		fmt.Printf("public key:  %s\n", pubPath)
		return nil
	},
}

func init() {
	keygenCmd.Flags().BoolVar(&keygenForce, "force", false, "Overwrite an existing key file")
}

// ── register ─────────────────────────────────────────────────────────────────

var regDisplayName string

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register this agent's public key with the gateway",
	RunE: func(cmd *cobra.Command, args []string) error {
		if agentID == "" {
			return fmt.Errorf("--id is required")
		}
		priv, err := loadPrivateKey()
		if err != nil {
			return err
		}
		name := regDisplayName
		if name == "" {
			name = agentID
		}

		c := client.New(gatewayURL)
		res, err := c.Register(context.Background(), agentID, name, priv.Public().(ed25519.PublicKey))
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (risk tier: %s)\n", res.AgentID, res.RiskTier)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&regDisplayName, "name", "", "Display name (defaults to the agent ID)")
}

// ── auth ─────────────────────────────────────────────────────────────────────

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Run the challenge-response handshake and print a bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := authenticate()
		if err != nil {
			return err
		}
		fmt.Println(c.Token())
		return nil
	},
}

// ── tools ────────────────────────────────────────────────────────────────────

var toolsCmd = &cobra.Command{
	Use:   "tools",
	Short: "List the enabled tool catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(gatewayURL)
		listed, err := c.ListTools(context.Background())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "TOOL\tRISK\tVERSION\tDESCRIPTION")
		for _, t := range listed {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", t.ToolID, t.Risk, t.Version, t.Description)
		}
		return w.Flush()
	},
}

// ── call ─────────────────────────────────────────────────────────────────────

var (
	callIntent  string
	callSandbox bool
	callScopes  []string
)

var callCmd = &cobra.Command{
	Use:   "call <tool_id[=json-args]> [tool_id[=json-args]] ...",
	Short: "Dispatch a secure call through the policy pipeline",
	Long: `Call authenticates, then dispatches one secure call carrying the listed
tool invocations. Arguments are inline JSON after an equals sign:

  inneri call --id agent_1 --intent demo 'echo={"text":"hi"}' time_now

With --sandbox, medium and high risk tools are blocked instead of run.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		calls := make([]client.ToolCall, 0, len(args))
		for _, a := range args {
			tc := client.ToolCall{ToolID: a}
			if i := strings.IndexByte(a, '='); i >= 0 {
				tc.ToolID = a[:i]
				if err := json.Unmarshal([]byte(a[i+1:]), &tc.Args); err != nil {
					return fmt.Errorf("invalid args for %s: %w", tc.ToolID, err)
				}
			}
			calls = append(calls, tc)
		}

		c, _, err := authenticate()
		if err != nil {
			return err
		}

		mode := ""
		if callSandbox {
			mode = "sandbox"
		}
		res, err := c.SecureCallMode(context.Background(), agentID, callIntent, calls, callScopes, mode)
		if err != nil {
			return err
		}
		if res.SchemaFailed {
			fmt.Fprintln(os.Stderr, "warning: one or more tool calls failed schema validation")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	callCmd.Flags().StringVar(&callIntent, "intent", "", "Declared intent for the call (required)")
	callCmd.Flags().BoolVar(&callSandbox, "sandbox", false, "Block medium and high risk tools instead of running them")
	callCmd.Flags().StringArrayVar(&callScopes, "scope", nil, "Data scope to request (repeatable)")
	_ = callCmd.MarkFlagRequired("intent")
}

// ── verify ───────────────────────────────────────────────────────────────────

var (
	verifyTarget string
	verifyLevel  string
	verifyNotes  string
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Record a verification event for an agent",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := authenticate()
		if err != nil {
			return err
		}
		target := verifyTarget
		if target == "" {
			target = agentID
		}

		res, err := c.VerifyAgent(context.Background(), target, verifyLevel, verifyNotes)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	},
}

func init() {
	verifyCmd.Flags().StringVar(&verifyTarget, "target", "", "Agent to verify (defaults to --id)")
	verifyCmd.Flags().StringVar(&verifyLevel, "level", "basic", "Verification level: basic, technical, performance, continuous")
	verifyCmd.Flags().StringVar(&verifyNotes, "notes", "", "Free-form verification notes")
}

// ── reputation ───────────────────────────────────────────────────────────────

var reputationCmd = &cobra.Command{
	Use:   "reputation [agent-id]",
	Short: "Show an agent's reputation score",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, _, err := authenticate()
		if err != nil {
			return err
		}
		target := agentID
		if len(args) == 1 {
			target = args[0]
		}

		score, err := c.Reputation(context.Background(), target)
		if err != nil {
			return err
		}
		fmt.Printf("%s: %d\n", target, score)
		return nil
	},
}

// ── audit ────────────────────────────────────────────────────────────────────

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Verify the gateway's audit chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := client.New(gatewayURL)
		entries, root, err := c.VerifyAuditChain(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("chain ok: %d entries\n", entries)
		fmt.Printf("root:     %s\n", root)
		return nil
	},
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the CLI version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("inneri", version)
	},
}

// ── helpers ──────────────────────────────────────────────────────────────────

func loadPrivateKey() (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read key %s: %w (run 'inneri keygen' first)", keyPath, err)
	}
	priv, err := agentkey.ParsePrivateKeyPEM(string(raw))
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", keyPath, err)
	}
	return priv, nil
}

// authenticate loads the private key and runs the handshake, returning a
// client holding a fresh bearer token.
func authenticate() (*client.Client, *client.Session, error) {
	if agentID == "" {
		return nil, nil, fmt.Errorf("--id is required")
	}
	priv, err := loadPrivateKey()
	if err != nil {
		return nil, nil, err
	}

	c := client.New(gatewayURL)
	sess, err := c.Authenticate(context.Background(), agentID, priv)
	if err != nil {
		return nil, nil, err
	}
	return c, sess, nil
}
