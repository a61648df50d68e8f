package state

import (
	"net/netip"
	"os"

	"github.com/goccy/go-yaml"
)

var (
	NodeConfigPath = "/etc/lattice/node.yaml"
)

// LocalCfg represents local node-level configuration
type LocalCfg struct {
	Id         NodeId            // unique id for this node
	Username   string            // display name advertised to the mesh
	SigningKey SigningPrivateKey `yaml:"signing_key"`          // RSA key used to sign outgoing payloads
	SessionKey SessionPrivateKey `yaml:"session_key"`          // X25519 key used to derive per-peer session keys
	Listen     netip.AddrPort    `yaml:"listen"`               // if valid, accept TCP neighbours on this address
	Peers      []netip.AddrPort  `yaml:"peers,omitempty"`      // TCP neighbours dialled on startup
	Allow      []netip.Prefix    `yaml:"allow,omitempty"`      // if not empty, only these source prefixes may connect
	LogPath    string            `yaml:"log_path,omitempty"`   // if not empty, lattice will write to this file
	PinPath    string            `yaml:"pin_path,omitempty"`   // if not empty, pinned node keys are persisted here
	PhotoPath  string            `yaml:"photo_path,omitempty"` // profile photo served to photo requests
	IPCPath    string            `yaml:"ipc_path,omitempty"`   // if not empty, the control socket for inspect
}

func NewLocalCfg(id *Identity) LocalCfg {
	return LocalCfg{
		Id:         id.Id,
		Username:   id.Username,
		SigningKey: SigningPrivateKey{id.SigningKey},
		SessionKey: SessionPrivateKey{id.SessionKey},
	}
}

func (c *LocalCfg) Identity() *Identity {
	return &Identity{
		Id:         c.Id,
		Username:   c.Username,
		SigningKey: c.SigningKey.PrivateKey,
		SessionKey: c.SessionKey.PrivateKey,
	}
}

func ReadNodeConfig(nodePath string) (*LocalCfg, error) {
	var nodeCfg LocalCfg
	file, err := os.ReadFile(nodePath)
	if err != nil {
		return nil, err
	}
	err = yaml.Unmarshal(file, &nodeCfg)
	if err != nil {
		return nil, err
	}
	return &nodeCfg, nil
}

func WriteNodeConfig(nodePath string, cfg *LocalCfg) error {
	bytes, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(nodePath, bytes, 0600)
}
