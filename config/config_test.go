package config

import "testing"

func validConfig() *Config {
	cfg := DefaultConfig()
	cfg.Genesis.ChainID = "qnet-test"
	return cfg
}

func TestValidateAcceptsDefaultConfig(t *testing.T) {
	if err := validConfig().Validate(); err != nil {
		t.Errorf("Validate on a default config should pass, got %v", err)
	}
}

func TestValidateRejectsEmptyNodeID(t *testing.T) {
	cfg := validConfig()
	cfg.NodeID = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject an empty node_id")
	}
}

func TestValidateRejectsUnknownNodeType(t *testing.T) {
	cfg := validConfig()
	cfg.NodeType = "Medium"
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a node_type outside Light/Full/Super")
	}
}

func TestValidateRejectsSamePorts(t *testing.T) {
	cfg := validConfig()
	cfg.P2PPort = cfg.RPCPort
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject identical rpc_port and p2p_port")
	}
}

func TestValidateRejectsOutOfRangePort(t *testing.T) {
	cfg := validConfig()
	cfg.RPCPort = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a port above 65535")
	}
}

func TestValidateRejectsPartialTLSConfig(t *testing.T) {
	cfg := validConfig()
	cfg.TLS = &TLSConfig{CACert: "ca.pem"}
	if err := cfg.Validate(); err == nil {
		t.Error("Validate should reject a TLS config with only some paths set")
	}
}

func TestValidateAcceptsFullyEmptyOrFullySetTLS(t *testing.T) {
	cfg := validConfig()
	cfg.TLS = &TLSConfig{}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate should accept an all-empty TLS config, got %v", err)
	}
	cfg.TLS = &TLSConfig{CACert: "ca.pem", NodeCert: "node.pem", NodeKey: "node.key"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate should accept a fully-set TLS config, got %v", err)
	}
}
