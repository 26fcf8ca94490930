// Command duskledgerd runs a single replicated-ledger node: it loads
// configuration, opens storage, brings up the consensus engine and the
// peer-to-peer listener, then drops into the operator console described
// in console.go. Subcommand structure is grounded on
// orbas1-Synnergy/synnergy-network/cmd/cli, the one example repo in this
// pack built on cobra.
package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"duskledger/internal/chain"
	"duskledger/internal/config"
	"duskledger/internal/consensus"
	"duskledger/internal/crypto"
	"duskledger/internal/ledger"
	"duskledger/internal/mempool"
	"duskledger/internal/p2p"
	"duskledger/internal/processor"
	"duskledger/internal/storage"
	"duskledger/internal/wallet"
	"duskledger/internal/wire"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:   "duskledgerd",
		Short: "Permissioned replicated-ledger node",
	}

	var configPath string
	var workers int

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Start the node and drop into the operator console",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(configPath, workers)
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to node config YAML (defaults baked in if omitted)")
	runCmd.Flags().IntVar(&workers, "workers", 4, "number of processor worker goroutines")

	var genCount int
	var genScheme string
	genCmd := &cobra.Command{
		Use:   "genaccounts",
		Short: "Generate fresh keypairs for bootstrapping a genesis UNL",
		RunE: func(cmd *cobra.Command, args []string) error {
			return genAccounts(genScheme, genCount)
		},
	}
	genCmd.Flags().IntVar(&genCount, "count", 1, "number of keypairs to generate")
	genCmd.Flags().StringVar(&genScheme, "scheme", "ed25519", "signature scheme: "+fmt.Sprint(crypto.Schemes()))

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the node version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(version)
			return nil
		},
	}

	root.AddCommand(runCmd, genCmd, versionCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// genAccounts prints fresh keypairs to stdout, hex-encoded, one per line:
// account id, public key, secret key. Operators feed these into a
// genesis balance file and the peers list of every UNL member's config.
func genAccounts(scheme string, count int) error {
	signer, err := crypto.Select(scheme)
	if err != nil {
		return err
	}
	for i := 0; i < count; i++ {
		sk, pk, err := signer.GenerateKeys()
		if err != nil {
			return fmt.Errorf("generate keypair: %w", err)
		}
		id := ledger.AccountID(pk)
		fmt.Printf("account=%s public_key=%s secret_key=%s\n",
			hex.EncodeToString(id.Bytes()), hex.EncodeToString(pk), hex.EncodeToString(sk))
	}
	return nil
}

func runNode(configPath string, workers int) error {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	signer, err := crypto.Select(cfg.SignatureScheme)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	store, err := storage.Open(filepath.Join(cfg.DataDir, "db"))
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer store.Close()

	sk, pk, err := loadOrCreateWalletKey(cfg.DataDir, signer)
	if err != nil {
		return fmt.Errorf("load wallet key: %w", err)
	}
	accountID := ledger.AccountID(pk)
	w := wallet.New(signer, sk, pk)

	if cfg.GenesisPath != "" {
		if err := seedGenesisAccounts(store, cfg.GenesisPath); err != nil {
			return fmt.Errorf("seed genesis accounts: %w", err)
		}
	}

	unl := make(map[crypto.Digest]bool)
	for _, peer := range cfg.Peers {
		if !peer.UNLMember {
			continue
		}
		raw, err := hex.DecodeString(peer.ID)
		if err != nil {
			return fmt.Errorf("peer %q: bad hex id: %w", peer.ID, err)
		}
		id, ok := crypto.DigestFromBytes(raw)
		if !ok {
			return fmt.Errorf("peer %q: id must be %d bytes", peer.ID, crypto.Size)
		}
		unl[id] = true
	}

	genesis := ledger.BlockHeader{Version: 1, Sequence: 0}
	tree := chain.New(genesis, len(unl))

	params := consensus.Params{
		UNL:            unl,
		QuorumPercent:  cfg.Consensus.QuorumPercent,
		IdleResetAfter: cfg.Consensus.IdleResetAfter,
		DisputeMaxAge:  cfg.Consensus.DisputeMaxAge,
		MinRoundTime:   cfg.Consensus.MinRoundTime,
	}
	pool := mempool.New()
	manager := p2p.NewManager(accountID, unl, log)
	engine := consensus.New(signer, sk, accountID, params, pool, tree, store, w, manager, log)
	proc := processor.New(signer, store, pool, engine, manager, len(unl), workers, log)
	manager.SetDispatcher(proc)

	nodeType := wire.NodeServer
	if unl[accountID] {
		nodeType = wire.NodeValidator
	}
	server, err := p2p.NewServer(cfg.ListenAddress, manager, nodeType, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	manager.Start()
	server.Start()
	proc.Start()
	engine.Start()

	for _, peer := range cfg.Peers {
		if peer.Address == "" {
			continue
		}
		if _, err := server.Dial(peer.Address); err != nil {
			log.WithError(err).WithField("peer", peer.Address).Warn("initial dial failed, will not retry automatically")
		}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		engine.Stop()
		proc.Stop()
		server.Stop()
		manager.Stop()
		os.Exit(0)
	}()

	console := newConsole(w, store, tree, pool, manager, accountID)
	console.run(os.Stdin, os.Stdout)
	return nil
}

// seedGenesisAccounts reads a flat "account=<hex> public_key=<hex>
// balance=<n>" line per pre-seeded account and writes each as a balance
// projection if it isn't already on disk. Other fields on a line are
// ignored; genAccounts prints account= and public_key= but no balance=,
// so its lines need a balance= field added before they can be seeded. The design assumes
// nodes start from a common genesis and this pre-seeded set (spec §1),
// so seeding is idempotent and never overwrites an account storage
// already has balance history for.
func seedGenesisAccounts(store *storage.Store, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := map[string]string{}
		for _, tok := range strings.Fields(line) {
			kv := strings.SplitN(tok, "=", 2)
			if len(kv) != 2 {
				return fmt.Errorf("genesis line %d: malformed field %q", i+1, tok)
			}
			fields[kv[0]] = kv[1]
		}
		idRaw, err := hex.DecodeString(fields["account"])
		if err != nil {
			return fmt.Errorf("genesis line %d: bad account hex: %w", i+1, err)
		}
		id, ok := crypto.DigestFromBytes(idRaw)
		if !ok {
			return fmt.Errorf("genesis line %d: account must be %d bytes", i+1, crypto.Size)
		}
		if _, err := store.GetBalance(id); err == nil {
			continue
		}
		pk, err := hex.DecodeString(fields["public_key"])
		if err != nil {
			return fmt.Errorf("genesis line %d: bad public_key hex: %w", i+1, err)
		}
		balance, err := strconv.ParseUint(fields["balance"], 10, 64)
		if err != nil {
			return fmt.Errorf("genesis line %d: bad balance: %w", i+1, err)
		}
		bal := ledger.BalanceProjection{PublicKey: pk, Balance: balance}
		buf := make([]byte, bal.Size())
		if _, err := bal.Serialize(buf, 0); err != nil {
			return fmt.Errorf("genesis line %d: %w", i+1, err)
		}
		if err := store.PutBalance(id, buf); err != nil {
			return fmt.Errorf("genesis line %d: %w", i+1, err)
		}
	}
	return nil
}

// loadOrCreateWalletKey reads dataDir/wallet.key (secret key bytes
// followed by public key bytes, sized per signer) or generates and
// persists a fresh keypair if the file doesn't exist yet.
func loadOrCreateWalletKey(dataDir string, signer crypto.Signer) (sk, pk []byte, err error) {
	path := filepath.Join(dataDir, "wallet.key")
	skSize := signer.PrivateKeySize()
	pkSize := signer.PublicKeySize()

	raw, err := os.ReadFile(path)
	if err == nil {
		if len(raw) != skSize+pkSize {
			return nil, nil, fmt.Errorf("wallet key file %s has unexpected size %d, want %d", path, len(raw), skSize+pkSize)
		}
		return raw[:skSize], raw[skSize:], nil
	}
	if !os.IsNotExist(err) {
		return nil, nil, err
	}

	sk, pk, err = signer.GenerateKeys()
	if err != nil {
		return nil, nil, err
	}
	raw = append(append([]byte{}, sk...), pk...)
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return nil, nil, err
	}
	return sk, pk, nil
}
