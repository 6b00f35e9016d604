// Command node runs a tolask ledger node.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tolelom/tolask/config"
	"github.com/tolelom/tolask/crypto/certgen"
	"github.com/tolelom/tolask/logging"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/tolelom/tolask/vm/modules/economy"
	_ "github.com/tolelom/tolask/vm/modules/qa"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:   "node",
	Short: "Run a tolask knowledge-market ledger node",
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the node and serve JSON-RPC",
	RunE:  runStart,
}

var genCertsCmd = &cobra.Command{
	Use:   "gencerts <dir> [client...]",
	Short: "Generate a CA, an RPC server certificate and client certificates",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runGenCerts,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	RunE:  runInit,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.json", "path to config file")
	initCmd.Flags().String("chain", "", "chain id (default tolask-dev)")
	initCmd.Flags().StringSlice("alloc", nil, "genesis allocation as pubkey=amount, repeatable")
	rootCmd.AddCommand(startCmd, initCmd, genCertsCmd)
}

func runInit(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(cfgPath); err == nil {
		return fmt.Errorf("%s already exists", cfgPath)
	}
	cfg := config.DefaultConfig()
	if chain, _ := cmd.Flags().GetString("chain"); chain != "" {
		cfg.Genesis.ChainID = chain
	}
	allocs, _ := cmd.Flags().GetStringSlice("alloc")
	for _, a := range allocs {
		key, value, ok := strings.Cut(a, "=")
		if !ok {
			return fmt.Errorf("alloc %q: want pubkey=amount", a)
		}
		amount, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("alloc %q: %w", a, err)
		}
		cfg.Genesis.Alloc[key] = amount
	}
	if dir := filepath.Dir(cfgPath); dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	if err := config.Save(cfg, cfgPath); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (chain %s)\n", cfgPath, cfg.Genesis.ChainID)
	return nil
}

func runGenCerts(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	dir := args[0]
	if err := certgen.Generate(dir, cfg.NodeID, args[1:], nil); err != nil {
		return fmt.Errorf("gencerts: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Certificates generated in %s for node %q\n", dir, cfg.NodeID)
	return nil
}

func runStart(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	cfg.ApplySecrets(secrets)
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := logging.New("tolask-node", cfg.LogLevel)
	n, err := openNode(cfg, log)
	if err != nil {
		return err
	}
	defer n.Close()

	if err := n.Start(); err != nil {
		return err
	}

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
