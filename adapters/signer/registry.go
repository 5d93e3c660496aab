package signer

import (
	"fmt"
	"strings"

	logging "github.com/ipfs/go-log/v2"

	"github.com/layer-3/keyvault/core"
	"github.com/layer-3/keyvault/ports"
)

var log = logging.Logger("keyvault/signer")

// Registry resolves signers by blockchain identifier, case-insensitively
type Registry struct {
	signers map[string]ports.Signer
	aliases map[string]string
}

var _ ports.SignerRegistry = (*Registry)(nil)

// NewRegistry registers the given signers under their Chain names
func NewRegistry(signers ...ports.Signer) *Registry {
	r := &Registry{
		signers: make(map[string]ports.Signer),
		aliases: make(map[string]string),
	}
	for _, s := range signers {
		r.signers[strings.ToLower(s.Chain())] = s
	}
	return r
}

// Default returns a registry with every built-in signer and the usual aliases
func Default() *Registry {
	r := NewRegistry(NewEthereum(), NewSolana(), NewFilecoin())
	r.Alias("eth", ChainEthereum)
	r.Alias("evm", ChainEthereum)
	r.Alias("sol", ChainSolana)
	r.Alias("fil", ChainFilecoin)
	return r
}

// Alias makes name resolve to the signer registered as chain
func (r *Registry) Alias(name, chain string) {
	r.aliases[strings.ToLower(name)] = strings.ToLower(chain)
}

func (r *Registry) Lookup(chain string) (ports.Signer, error) {
	name := strings.ToLower(strings.TrimSpace(chain))
	if target, ok := r.aliases[name]; ok {
		name = target
	}
	s, ok := r.signers[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", chain, core.ErrUnknownChain)
	}
	return s, nil
}
