package core

import "time"

// Config collects a node's startup parameters. cmd/cli's nodeInit fills it
// from the viper keys (YAML + environment) that pkg/config.Config also
// describes.
type Config struct {
	Host                   string
	Port                   int
	BroadcastPort          int
	Username               string
	Difficulty             int
	BroadcastInterval      time.Duration
	SyncInterval           time.Duration
	MaxConnections         int
	MempoolMiningThreshold int
	BootstrapPeers         []string
	ReconnectInterval      time.Duration
}

// DefaultConfig returns the baseline startup parameters a node uses absent
// any configuration file.
func DefaultConfig() Config {
	return Config{
		Host:                   "0.0.0.0",
		Port:                   5555,
		BroadcastPort:          5556,
		Difficulty:             4,
		BroadcastInterval:      time.Second,
		SyncInterval:           5 * time.Second,
		MaxConnections:         5,
		MempoolMiningThreshold: 3,
		ReconnectInterval:      10 * time.Second,
	}
}

// Identity bundles a node's signing keypair, agreement keypair and
// username — the single identity a node owns.
type Identity struct {
	Username  string
	Signer    Signer
	Agreement KeyAgreement
}

// NewIdentity generates a fresh signing and key-agreement keypair.
func NewIdentity(username string) (*Identity, error) {
	signer, err := NewEd25519Signer()
	if err != nil {
		return nil, err
	}
	agreement, err := NewX25519Agreement()
	if err != nil {
		return nil, err
	}
	return &Identity{Username: username, Signer: signer, Agreement: agreement}, nil
}

// AsPeer renders this identity as the Peer tuple advertised over
// discovery.
func (id *Identity) AsPeer(host string, port int) Peer {
	return Peer{
		Host:         host,
		Port:         port,
		Username:     id.Username,
		AgreementKey: id.Agreement.PublicValue(),
	}
}
