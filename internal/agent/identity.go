package agent

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/Nileneb/growdash/internal/infrastructure/config"
	"github.com/Nileneb/growdash/internal/usb"
)

// Logger is the minimal logging interface the resolver needs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Identity is the (public_id, token) pair a backend consumer uses to
// address one device.
type Identity struct {
	PublicID string `json:"public_id"`
	Token    string `json:"-"`
	Port     string `json:"port"`
}

// Resolver assigns identities to ports: statically bound credentials
// when the operator configured them, else a deterministic derivation
// from the device's USB identity so reruns are idempotent.
type Resolver struct {
	prefix string
	bound  map[string]config.PortBinding
}

// NewResolver builds a Resolver from static bindings. Duplicate
// bindings for one port resolve last-write-wins with a warning.
func NewResolver(cfg config.AgentConfig, logger Logger) *Resolver {
	if logger == nil {
		logger = noopLogger{}
	}

	bound := make(map[string]config.PortBinding, len(cfg.Bindings))
	for _, b := range cfg.Bindings {
		if prev, ok := bound[b.Port]; ok {
			logger.Warn("duplicate binding for port, last one wins",
				"port", b.Port, "replaced_public_id", prev.PublicID, "public_id", b.PublicID)
		}
		bound[b.Port] = b
	}

	prefix := cfg.IDPrefix
	if prefix == "" {
		prefix = "growdash"
	}
	return &Resolver{prefix: prefix, bound: bound}
}

// Resolve returns the identity for a device.
func (r *Resolver) Resolve(dev usb.Device) Identity {
	if b, ok := r.bound[dev.Path]; ok {
		return Identity{PublicID: b.PublicID, Token: b.Token, Port: dev.Path}
	}
	return r.derive(dev)
}

// derive builds a stable identity from vendor, product and port name.
// The token is a digest of the public ID, so the same hardware on the
// same port always yields the same pair.
func (r *Resolver) derive(dev usb.Device) Identity {
	port := strings.TrimPrefix(dev.Path, "/dev/")
	port = strings.ReplaceAll(port, "/", "-")

	publicID := fmt.Sprintf("%s-%s-%s-%s", r.prefix, dev.VendorID, dev.ProductID, port)
	sum := sha256.Sum256([]byte(publicID))

	return Identity{
		PublicID: publicID,
		Token:    hex.EncodeToString(sum[:16]),
		Port:     dev.Path,
	}
}
