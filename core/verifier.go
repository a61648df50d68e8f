package core

import (
	"bytes"
	"encoding/base64"
	"errors"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/encodeous/lattice/state"
	"github.com/goccy/go-yaml"
)

// NodeVerifier decides whether a node's claimed keys are consistent with what
// is already known about its id.
type NodeVerifier interface {
	CheckNode(node state.Node) bool
}

type pinRecord struct {
	Id       state.NodeId `yaml:"id"`
	Username string       `yaml:"username"`
	Key      string       `yaml:"key"` // base64 PKIX DER of the signing key
}

// PinStore implements trust-on-first-use: the first signing key seen for an id
// is pinned, and every later sighting must present the same key. Pins are
// persisted as YAML when a path is configured.
type PinStore struct {
	mu   sync.Mutex
	log  *slog.Logger
	path string
	pins map[state.NodeId]pinRecord
}

func NewPinStore(path string, log *slog.Logger) (*PinStore, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	p := &PinStore{
		log:  log.With("module", "pins"),
		path: path,
		pins: make(map[state.NodeId]pinRecord),
	}
	if path == "" {
		return p, nil
	}
	file, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, err
	}
	var records []pinRecord
	if err = yaml.Unmarshal(file, &records); err != nil {
		return nil, err
	}
	for _, rec := range records {
		p.pins[rec.Id] = rec
	}
	return p, nil
}

func (p *PinStore) CheckNode(node state.Node) bool {
	der, err := state.MarshalSigningKey(node.SigningKey)
	if err != nil {
		return false
	}
	key := base64.StdEncoding.EncodeToString(der)

	p.mu.Lock()
	defer p.mu.Unlock()
	if rec, ok := p.pins[node.Id]; ok {
		if rec.Key != key {
			p.log.Warn("node presented a different signing key", "node", node)
			return false
		}
		return true
	}
	p.pins[node.Id] = pinRecord{Id: node.Id, Username: node.Username, Key: key}
	p.log.Info("pinned new node", "node", node)
	if err = p.save(); err != nil {
		p.log.Error("failed to persist pins", "path", p.path, "error", err)
	}
	return true
}

// Forget removes the pin for id, so the next key presented is trusted again.
func (p *PinStore) Forget(id state.NodeId) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pins, id)
	if err := p.save(); err != nil {
		p.log.Error("failed to persist pins", "path", p.path, "error", err)
	}
}

// Pinned reports whether node's signing key is the one pinned for its id.
func (p *PinStore) Pinned(node state.Node) bool {
	der, err := state.MarshalSigningKey(node.SigningKey)
	if err != nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	rec, ok := p.pins[node.Id]
	if !ok {
		return false
	}
	pinned, err := base64.StdEncoding.DecodeString(rec.Key)
	return err == nil && bytes.Equal(pinned, der)
}

func (p *PinStore) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pins)
}

func (p *PinStore) save() error {
	if p.path == "" {
		return nil
	}
	records := make([]pinRecord, 0, len(p.pins))
	for _, rec := range p.pins {
		records = append(records, rec)
	}
	slices.SortFunc(records, func(a, b pinRecord) int {
		return compareIds(a.Id, b.Id)
	})
	out, err := yaml.Marshal(records)
	if err != nil {
		return err
	}
	return os.WriteFile(p.path, out, 0600)
}
