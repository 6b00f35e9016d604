package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/tolelom/tolask/config"
	"github.com/tolelom/tolask/core"
	"github.com/tolelom/tolask/events"
	"github.com/tolelom/tolask/host"
	"github.com/tolelom/tolask/indexer"
	"github.com/tolelom/tolask/metrics"
	"github.com/tolelom/tolask/rpc"
	"github.com/tolelom/tolask/storage"
	"github.com/tolelom/tolask/vm"
)

// node bundles the components of a running ledger node.
type node struct {
	cfg    *config.Config
	log    *logrus.Logger
	db     storage.DB
	host   *host.Host
	server *rpc.Server
}

func openDB(cfg *config.Config) (storage.DB, error) {
	if cfg.Storage.Backend != config.BackendMySQL {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("mkdir data dir: %w", err)
		}
	}
	switch cfg.Storage.Backend {
	case config.BackendLevelDB:
		return storage.NewLevelDB(filepath.Join(cfg.DataDir, "ledger"))
	case config.BackendSQLite:
		return storage.OpenSQLite(filepath.Join(cfg.DataDir, "ledger.db"))
	case config.BackendMySQL:
		return storage.OpenSQL(storage.DialectMySQL, cfg.Storage.DSN)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func openNode(cfg *config.Config, log *logrus.Logger) (*node, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	n := &node{cfg: cfg, log: log, db: db}
	if err := n.assemble(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return n, nil
}

func (n *node) assemble() error {
	state := storage.NewStateDB(n.db)

	journal := core.NewJournal(storage.NewReceiptStore(n.db))
	if err := journal.Init(); err != nil {
		return fmt.Errorf("journal init: %w", err)
	}

	// ---- genesis (fresh ledger only) ----
	if journal.Height() == 0 {
		root, err := config.ApplyGenesis(n.cfg.Genesis, state)
		if err != nil {
			return fmt.Errorf("genesis: %w", err)
		}
		n.log.WithFields(logrus.Fields{"chain_id": n.cfg.Genesis.ChainID, "state_root": root}).Info("genesis applied")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	emitter := events.NewEmitter(n.log)
	idx := indexer.New(n.db, emitter, n.log)
	exec := vm.NewExecutor(state, emitter, vm.Options{
		ChainID: n.cfg.Genesis.ChainID,
		Escrow:  n.cfg.Genesis.Escrow,
		Logger:  n.log,
		Metrics: m,
	})
	n.host = host.New(state, journal, exec, n.log)

	tlsCfg, err := config.ServerTLS(n.cfg.RPCTLS)
	if err != nil {
		return fmt.Errorf("tls: %w", err)
	}

	addr := fmt.Sprintf(":%d", n.cfg.RPCPort)
	n.server = rpc.NewServer(addr, rpc.NewHandler(n.host, idx, n.cfg.Genesis.ChainID), rpc.ServerOptions{
		AuthToken: n.cfg.RPCAuthToken,
		Logger:    n.log,
		Metrics:   m,
		Gatherer:  reg,
		TLS:       tlsCfg,
	})
	return nil
}

// Start begins serving RPC requests.
func (n *node) Start() error {
	if err := n.server.Start(); err != nil {
		return fmt.Errorf("rpc start: %w", err)
	}
	n.log.WithFields(logrus.Fields{
		"addr":    n.server.Addr(),
		"backend": n.cfg.Storage.Backend,
		"height":  n.host.Height(),
		"auth":    n.cfg.RPCAuthToken != "",
		"tls":     n.cfg.RPCTLS.Cert != "",
	}).Info("rpc listening")
	return nil
}

// Close stops the RPC server, then closes the database.
func (n *node) Close() error {
	var errs []error
	if n.server != nil {
		errs = append(errs, n.server.Stop())
	}
	errs = append(errs, n.db.Close())
	return errors.Join(errs...)
}
