// Command tolask is a command-line client for a tolask node.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tolelom/tolask/config"
	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/rpc"
	"github.com/tolelom/tolask/wallet"
)

var (
	rpcURL  string
	keyPath string
	chainID string
	caCert  string
	tlsCert string
	tlsKey  string
)

var rootCmd = &cobra.Command{
	Use:           "tolask",
	Short:         "Ask, answer and settle questions on a tolask node",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rpcURL, "rpc", "http://127.0.0.1:8545", "node JSON-RPC endpoint")
	pf.StringVarP(&keyPath, "key", "k", "wallet.key", "path to keystore file")
	pf.StringVar(&chainID, "chain", "tolask-dev", "chain id the calls are signed for")
	pf.StringVar(&caCert, "ca", "", "CA certificate of the node's RPC endpoint")
	pf.StringVar(&tlsCert, "tls-cert", "", "client certificate for mutual TLS")
	pf.StringVar(&tlsKey, "tls-key", "", "client certificate key for mutual TLS")

	rootCmd.AddCommand(
		&cobra.Command{Use: "keygen", Short: "Generate a new keystore", Args: cobra.NoArgs, RunE: runKeygen},
		&cobra.Command{Use: "ask <reward> <content>", Short: "Post a question with a reward", Args: cobra.ExactArgs(2), RunE: runAsk},
		&cobra.Command{Use: "answer <question-id> <content>", Short: "Answer a question (costs 1)", Args: cobra.ExactArgs(2), RunE: runAnswer},
		&cobra.Command{Use: "upvote <question-id> <answer-id> <value>", Short: "Tip an answer's author", Args: cobra.ExactArgs(3), RunE: runUpvote},
		&cobra.Command{Use: "accept <question-id> <answer-id>", Short: "Settle your question on an answer", Args: cobra.ExactArgs(2), RunE: runAccept},
		&cobra.Command{Use: "transfer <to> <amount>", Short: "Send host value", Args: cobra.ExactArgs(2), RunE: runTransfer},
		&cobra.Command{Use: "questions", Short: "List every question", Args: cobra.NoArgs, RunE: runQuestions},
		&cobra.Command{Use: "question <id>", Short: "Show one question", Args: cobra.ExactArgs(1), RunE: runQuestion},
		&cobra.Command{Use: "stake [account]", Short: "Show pooled stake (default: own key)", Args: cobra.MaximumNArgs(1), RunE: runStake},
		&cobra.Command{Use: "balance [address]", Short: "Show host balance (default: own key)", Args: cobra.MaximumNArgs(1), RunE: runBalance},
	)
}

func client() (*rpc.Client, error) {
	secrets, err := config.LoadSecrets()
	if err != nil {
		return nil, err
	}
	tc, err := config.ClientTLS(caCert, tlsCert, tlsKey)
	if err != nil {
		return nil, err
	}
	return rpc.NewClient(rpcURL, secrets.RPCAuthToken).WithTLS(tc), nil
}

func loadWallet() (*wallet.Wallet, error) {
	secrets, err := config.LoadSecrets()
	if err != nil {
		return nil, err
	}
	priv, err := wallet.LoadKey(keyPath, secrets.KeyPassword)
	if err != nil {
		return nil, fmt.Errorf("load key: %w", err)
	}
	return wallet.New(priv, chainID), nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

func parseID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return uint32(v), nil
}

type account struct {
	Address string   `json:"address"`
	Balance *big.Int `json:"balance"`
	Nonce   uint64   `json:"nonce"`
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// submit builds a call with the wallet's next nonce and sends it.
func submit(cmd *cobra.Command, build func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error)) error {
	w, err := loadWallet()
	if err != nil {
		return err
	}
	c, err := client()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	var acc account
	if err := c.Call(ctx, "getBalance", map[string]string{"address": w.PubKey()}, &acc); err != nil {
		return err
	}
	tx, err := build(w, acc.Nonce)
	if err != nil {
		return err
	}
	var receipt core.Receipt
	if err := c.Call(ctx, "sendCall", tx, &receipt); err != nil {
		return err
	}
	return printJSON(cmd, receipt)
}

func runKeygen(cmd *cobra.Command, _ []string) error {
	if _, err := os.Stat(keyPath); err == nil {
		return fmt.Errorf("%s already exists", keyPath)
	}
	secrets, err := config.LoadSecrets()
	if err != nil {
		return err
	}
	if secrets.KeyPassword == "" {
		fmt.Fprintln(cmd.ErrOrStderr(), "WARNING: TOL_PASSWORD not set; keystore will use an empty password")
	}
	w, err := wallet.Generate(chainID)
	if err != nil {
		return err
	}
	if err := wallet.SaveKey(keyPath, secrets.KeyPassword, w.PrivKey()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Public key (account): %s\nSaved to: %s\n", w.PubKey(), keyPath)
	return nil
}

func runAsk(cmd *cobra.Command, args []string) error {
	reward, err := parseAmount(args[0])
	if err != nil {
		return err
	}
	return submit(cmd, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Ask(nonce, args[1], reward)
	})
}

func runAnswer(cmd *cobra.Command, args []string) error {
	qid, err := parseID(args[0])
	if err != nil {
		return err
	}
	return submit(cmd, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Answer(nonce, qid, args[1], core.NewAmount(1))
	})
}

func runUpvote(cmd *cobra.Command, args []string) error {
	qid, err := parseID(args[0])
	if err != nil {
		return err
	}
	aid, err := parseID(args[1])
	if err != nil {
		return err
	}
	value, err := parseAmount(args[2])
	if err != nil {
		return err
	}
	return submit(cmd, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Upvote(nonce, qid, aid, value)
	})
}

func runAccept(cmd *cobra.Command, args []string) error {
	qid, err := parseID(args[0])
	if err != nil {
		return err
	}
	aid, err := parseID(args[1])
	if err != nil {
		return err
	}
	return submit(cmd, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Accept(nonce, qid, aid)
	})
}

func runTransfer(cmd *cobra.Command, args []string) error {
	amount, err := parseAmount(args[1])
	if err != nil {
		return err
	}
	return submit(cmd, func(w *wallet.Wallet, nonce uint64) (*core.Transaction, error) {
		return w.Transfer(nonce, args[0], amount)
	})
}

func runQuestions(cmd *cobra.Command, _ []string) error {
	return query(cmd, "listQuestions", nil, &map[uint32]*core.Question{})
}

func runQuestion(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return query(cmd, "getQuestion", map[string]uint32{"id": id}, &core.Question{})
}

// ownOrArg returns args[0] or, without arguments, the keystore's public key.
func ownOrArg(args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	w, err := loadWallet()
	if err != nil {
		return "", err
	}
	return w.PubKey(), nil
}

func runStake(cmd *cobra.Command, args []string) error {
	acct, err := ownOrArg(args)
	if err != nil {
		return err
	}
	return query(cmd, "getStake", map[string]string{"account": acct}, &map[string]any{})
}

func runBalance(cmd *cobra.Command, args []string) error {
	addr, err := ownOrArg(args)
	if err != nil {
		return err
	}
	return query(cmd, "getBalance", map[string]string{"address": addr}, &account{})
}

func query(cmd *cobra.Command, method string, params, out any) error {
	c, err := client()
	if err != nil {
		return err
	}
	if err := c.Call(cmd.Context(), method, params, out); err != nil {
		return err
	}
	return printJSON(cmd, out)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
