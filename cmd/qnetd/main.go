// Command qnetd starts a QNet node.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/qnet-chain/qnetd/activation"
	"github.com/qnet-chain/qnetd/config"
	"github.com/qnet-chain/qnetd/consensus"
	"github.com/qnet-chain/qnetd/core"
	"github.com/qnet-chain/qnetd/crypto/certgen"
	"github.com/qnet-chain/qnetd/events"
	"github.com/qnet-chain/qnetd/indexer"
	"github.com/qnet-chain/qnetd/internal/logging"
	"github.com/qnet-chain/qnetd/network"
	"github.com/qnet-chain/qnetd/reputation"
	"github.com/qnet-chain/qnetd/rpc"
	"github.com/qnet-chain/qnetd/storage"
	"github.com/qnet-chain/qnetd/vm"
	"github.com/qnet-chain/qnetd/wallet"

	// Import VM modules to trigger their init() self-registration.
	_ "github.com/qnet-chain/qnetd/vm/modules/activation"
	_ "github.com/qnet-chain/qnetd/vm/modules/economy"
)

func main() {
	cfgPath := flag.String("config", "config.json", "path to config file")
	keyPath := flag.String("key", "validator.key", "path to keystore file")
	genKey := flag.Bool("genkey", false, "generate a new validator key and exit")
	genCerts := flag.String("gencerts", "", "generate CA + node TLS certs into the given directory and exit (requires node ID from config)")
	bootstrap := flag.Bool("bootstrap", false, "activate this node's config.genesis.bootstrap_nodes directly, without a burn proof, and exit")
	flag.Parse()

	// Read keystore password from environment (not CLI flags — they leak via ps).
	password := os.Getenv("QNET_PASSWORD")
	if password == "" {
		log.Println("WARNING: QNET_PASSWORD not set — keystore will use an empty password")
	}

	// ---- generate key mode ----
	if *genKey {
		w, err := wallet.Generate()
		if err != nil {
			log.Fatal(err)
		}
		if err := wallet.SaveKey(*keyPath, password, w.PrivKey()); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Generated key. Node ID (hybrid public key): %s\n", w.PubKey())
		fmt.Printf("Saved to: %s\n", *keyPath)
		return
	}

	// ---- generate certs mode ----
	if *genCerts != "" {
		cfgForCerts, err := loadConfig(*cfgPath)
		if err != nil {
			log.Fatalf("config: %v", err)
		}
		if err := certgen.GenerateAll(*genCerts, cfgForCerts.NodeID, nil); err != nil {
			log.Fatalf("gencerts: %v", err)
		}
		fmt.Printf("Certificates generated in %s for node %q\n", *genCerts, cfgForCerts.NodeID)
		return
	}

	// ---- load config ----
	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logging.SetLevelFromString(cfg.LogLevel)

	// ---- load validator key ----
	privKey, err := wallet.LoadKey(*keyPath, password)
	if err != nil {
		log.Fatalf("load key: %v", err)
	}

	// ---- open DB ----
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("mkdir data dir: %v", err)
	}
	db, err := storage.NewLevelDB(cfg.DataDir + "/chain")
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	blockStore := storage.NewLevelBlockStore(db)
	state := storage.NewStateDB(db)
	macros := storage.NewMacroStore(db)
	actStore := activation.NewStore(db)

	// ---- initialise blockchain ----
	bc := core.NewBlockchain(blockStore)
	if err := bc.Init(); err != nil {
		log.Fatalf("blockchain init: %v", err)
	}

	// ---- reputation ledger ----
	ledger := reputation.New(db)

	// ---- genesis block (if fresh chain) ----
	if bc.Tip() == nil {
		genesisBlock, err := config.CreateGenesisBlock(cfg, state, privKey)
		if err != nil {
			log.Fatalf("genesis: %v", err)
		}
		if err := bc.AddBlock(genesisBlock); err != nil {
			log.Fatalf("add genesis: %v", err)
		}
		log.Printf("Genesis block committed: %s", genesisBlock.Hash)
	}

	// ---- bootstrap-activation mode ----
	if *bootstrap {
		wallets := make(map[string]string, len(cfg.Genesis.BootstrapNodes))
		for _, id := range cfg.Genesis.BootstrapNodes {
			wallets[id] = id
		}
		if err := activation.Bootstrap(cfg, actStore, ledger, wallets); err != nil {
			log.Fatalf("bootstrap: %v", err)
		}
		fmt.Printf("Bootstrapped %d node(s) under bootstrap id %q\n", len(cfg.Genesis.BootstrapNodes), cfg.BootstrapID)
		return
	}

	nodeID := privKey.Public().Hex()
	if !config.IsBootstrapNode(cfg, nodeID) {
		if ok, err := actStore.Exists(nodeID); err != nil {
			log.Fatalf("activation lookup: %v", err)
		} else if !ok {
			log.Fatalf("node %s is not activated: run with -bootstrap (genesis nodes) or submit an activation transaction first", nodeID)
		}
	}

	// ---- events ----
	emitter := events.NewEmitter()
	ledger.SetEmitter(emitter)

	// ---- indexer ----
	idx := indexer.New(db, emitter)

	// ---- mempool ----
	mempool := core.NewMempool()

	// ---- VM executor ----
	exec := vm.NewExecutor(state, emitter)

	// ---- TLS ----
	tlsCfg, err := config.LoadTLSConfig(cfg.TLS)
	if err != nil {
		log.Fatalf("tls: %v", err)
	}
	if tlsCfg != nil {
		log.Println("mTLS enabled for P2P")
	}

	// ---- network ----
	p2pAddr := fmt.Sprintf(":%d", cfg.P2PPort)
	node := network.NewNode(cfg.NodeID, p2pAddr, mempool, ledger, tlsCfg)

	// ---- consensus ----
	gossipRounds := consensus.NewGossipRounds(ledger, node)
	microEngine := consensus.New(cfg, bc, state, mempool, exec, emitter, ledger, gossipRounds, privKey)
	microEngine.SetBroadcaster(node)
	failoverMonitor := consensus.NewFailoverMonitor(microEngine, ledger)
	integrityMonitor := consensus.NewIntegrityMonitor(bc, ledger, emitter)
	macroEngine := consensus.NewMacroEngine(macros, ledger, emitter)
	macroDriver := consensus.NewMacroDriver(macroEngine, bc, ledger, node, node, nodeID)

	node.Handle(network.MsgVRFProof, func(_ *network.Peer, msg network.Message) {
		var m network.VRFProofMsg
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			log.Printf("[main] unmarshal vrf proof: %v", err)
			return
		}
		gossipRounds.ReceiveProof(m.Height, m.NodeID, m.Proof)
	})
	node.Handle(network.MsgMacroCommit, func(_ *network.Peer, msg network.Message) {
		var m network.MacroCommitMsg
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			log.Printf("[main] unmarshal macro commit: %v", err)
			return
		}
		if err := macroEngine.SubmitCommit(m.Participant, m.Commitment); err != nil {
			log.Printf("[main] submit commit from %s: %v", m.Participant, err)
		}
	})
	node.Handle(network.MsgMacroReveal, func(_ *network.Peer, msg network.Message) {
		var m network.MacroRevealMsg
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			log.Printf("[main] unmarshal macro reveal: %v", err)
			return
		}
		if err := macroEngine.SubmitReveal(m.Participant, m.Reveal); err != nil {
			log.Printf("[main] submit reveal from %s: %v", m.Participant, err)
		}
	})

	syncer := network.NewSyncer(node, bc, validatorFunc(microEngine.ValidateIncoming), exec, state)
	syncer.SetIntegrityMonitor(integrityMonitor)
	if err := node.Start(); err != nil {
		log.Fatalf("p2p start: %v", err)
	}
	defer node.Stop()
	log.Printf("P2P listening on %s", p2pAddr)

	// ---- connect to seed peers ----
	for _, sp := range cfg.SeedPeers {
		if err := node.AddPeer(sp.ID, sp.Addr); err != nil {
			log.Printf("seed peer %s (%s): %v", sp.ID, sp.Addr, err)
			continue
		}
		if err := syncer.RequestBlocks(node.Peer(sp.ID), bc.Height()+1); err != nil {
			log.Printf("initial sync request to %s: %v", sp.ID, err)
		}
		log.Printf("Connected to seed peer %s (%s)", sp.ID, sp.Addr)
	}

	// ---- RPC ----
	rpcAddr := fmt.Sprintf(":%d", cfg.RPCPort)
	rpcHandler := rpc.NewHandler(bc, mempool, state, ledger, idx, node.KnownNodeIDs)
	rpcServer := rpc.NewServer(rpcAddr, rpcHandler, cfg.RPCAuthToken)
	if err := rpcServer.Start(); err != nil {
		log.Fatalf("rpc start: %v", err)
	}
	defer rpcServer.Stop()
	log.Printf("RPC listening on %s", rpcAddr)
	if cfg.RPCAuthToken != "" {
		log.Println("RPC Bearer token authentication enabled")
	}

	// ---- consensus loops ----
	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		microEngine.Run(done, failoverMonitor, node.IsLive)
	}()
	go func() {
		defer wg.Done()
		macroDriver.Run(done)
	}()
	log.Printf("Consensus running (node: %s, role: %s)", nodeID, cfg.NodeType)

	// ---- graceful shutdown ----
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Println("Shutting down...")

	// 1. Stop consensus first (no new blocks written)
	close(done)
	wg.Wait()

	// 2. Deferred calls run in LIFO: rpcServer.Stop -> node.Stop -> db.Close
	log.Println("Shutdown complete.")
}

// validatorFunc adapts a plain function to network.BlockValidator.
type validatorFunc func(block *core.Microblock) error

func (f validatorFunc) ValidateBlock(block *core.Microblock) error { return f(block) }

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("Config file not found at %s, using defaults.", path)
			return config.DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}
