package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/akashsateesha/Clickless-IKEA/internal/catalog"
	"github.com/akashsateesha/Clickless-IKEA/internal/config"
	"github.com/akashsateesha/Clickless-IKEA/internal/storage"
)

// --- chat ---

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Shop interactively against a running server",
	Long: `Shop interactively against a running server.

Each line is one utterance. Type "exit" or press Ctrl-D to leave; the
session stays on the server and can be resumed with --session.

Examples:
  clickless chat
  clickless chat --session 4f0c2a4e-...`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		return runChat(cmd, client, sessionID)
	},
}

func runChat(cmd *cobra.Command, client *apiClient, sessionID string) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if sessionID == "" {
		id, err := client.createSession(ctx)
		if err != nil {
			return err
		}
		sessionID = id
	}
	fmt.Fprintln(out, colorize(colorDim, "session "+sessionID))

	in := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, colorize(colorBold, "you: "))
		if !in.Scan() {
			fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit", "/quit":
			return nil
		}

		reply, err := client.turn(ctx, sessionID, line)
		if err != nil {
			printError("%v", err)
			continue
		}
		renderReply(out, reply)
	}
}

func init() {
	chatCmd.Flags().String("session", "", "resume an existing session")
}

// --- catalog ---

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage the product catalog",
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Embed and import products from a JSON or YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		batch, _ := cmd.Flags().GetInt("batch")

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		setupLogging(cfg)

		products, err := catalog.LoadFile(args[0])
		if err != nil {
			return err
		}
		if len(products) == 0 {
			printWarning("no products in %s", args[0])
			return nil
		}

		ctx := cmd.Context()
		eng, err := openEngine(ctx, cfg, os.Stderr)
		if err != nil {
			return err
		}
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening storage: %w", err)
		}
		defer store.Close()

		_, embedModel := cfg.LLM.Models()
		printStep("Embedding %d products with %s...", len(products), embedModel)
		im := catalog.NewImporter(catalog.NewSQLiteStore(store.DB()), catalog.NewProductEmbedder(eng, embedModel), batch)
		n, err := im.Import(ctx, products)
		if err != nil {
			return fmt.Errorf("imported %d of %d products: %w", n, len(products), err)
		}
		printSuccess("Imported %d products", n)
		return nil
	},
}

func init() {
	catalogImportCmd.Flags().Int("batch", 32, "products embedded per batch")
	catalogCmd.AddCommand(catalogImportCmd)
}

// --- session ---

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Inspect or end shopping sessions",
}

var sessionShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a session's constraints, candidates and cart as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/v1/sessions/"+args[0])
		if err != nil {
			return err
		}
		var sc json.RawMessage
		if err := decodeJSON(resp, &sc); err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), sc)
	},
}

var sessionTurnsCmd = &cobra.Command{
	Use:   "turns <id>",
	Short: "List a session's most recent turns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/v1/sessions/%s/turns?limit=%d", args[0], limit))
		if err != nil {
			return err
		}
		var turns []struct {
			CreatedAt string `json:"created_at"`
			Utterance string `json:"utterance"`
			Intent    string `json:"intent"`
			ReplyKind string `json:"reply_kind"`
			Reply     string `json:"reply"`
		}
		if err := decodeJSON(resp, &turns); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(turns) == 0 {
			fmt.Fprintln(out, "No turns found.")
			return nil
		}
		for _, t := range turns {
			fmt.Fprintf(out, "%s  %s  %s\n", colorize(colorCyan, t.Intent), t.CreatedAt, t.Utterance)
			fmt.Fprintf(out, "    → %s\n", truncate(t.Reply, 120))
		}
		return nil
	},
}

var sessionEndCmd = &cobra.Command{
	Use:   "end <id>",
	Short: "End a session, abandoning any turn in flight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.delete(cmd.Context(), "/v1/sessions/"+args[0])
		if err != nil {
			return err
		}
		if err := decodeJSON(resp, nil); err != nil {
			return err
		}
		printSuccess("Ended session %s", args[0])
		return nil
	},
}

func init() {
	sessionTurnsCmd.Flags().Int("limit", 20, "maximum number of turns to list")
	sessionCmd.AddCommand(sessionShowCmd)
	sessionCmd.AddCommand(sessionTurnsCmd)
	sessionCmd.AddCommand(sessionEndCmd)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if r := []rune(s); len(r) > n {
		return string(r[:n]) + "..."
	}
	return s
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, colorize(colorDim, "# "+config.FilePath()))
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s %s\n", colorize(colorBold, k.Key), k.Value, colorize(colorDim, "("+k.EnvVar+")"))
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
