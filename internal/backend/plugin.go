// Package backend launches external training backends as plugin
// subprocesses. The training loops themselves (tokenization, optimizer
// steps) live in the backend process; this side only ships a FitRequest
// across and waits for the loss.
package backend

import (
	"fmt"
	"os/exec"

	"github.com/hashicorp/go-plugin"

	"automl-backend/plugin/shared"
)

// TODO: PluginBackend is not safe for concurrent Fit calls; add a mutex if
// jobs are ever trained in parallel.
type PluginBackend struct {
	client  *plugin.Client
	backend shared.Backend
}

var _ shared.Backend = (*PluginBackend)(nil)

// Launch starts the backend executable (typically a Python wrapper around
// the actual training library) and establishes the plugin connection.
func Launch(executable, script string, args ...string) (*PluginBackend, error) {
	cmd := exec.Command(executable, append([]string{script}, args...)...)

	client := plugin.NewClient(&plugin.ClientConfig{
		HandshakeConfig:  shared.Handshake,
		Plugins:          shared.PluginMap,
		Cmd:              cmd,
		AllowedProtocols: []plugin.Protocol{plugin.ProtocolNetRPC},
	})

	rpcClient, err := client.Client()
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("error establishing RPC connection: %w", err)
	}

	raw, err := rpcClient.Dispense(shared.BackendPluginName)
	if err != nil {
		client.Kill()
		return nil, fmt.Errorf("error dispensing %q: %w", shared.BackendPluginName, err)
	}

	backend, ok := raw.(shared.Backend)
	if !ok {
		client.Kill()
		return nil, fmt.Errorf("dispensed interface %q is not a trainer backend (actual type: %T)", shared.BackendPluginName, raw)
	}

	return &PluginBackend{client: client, backend: backend}, nil
}

func (b *PluginBackend) Fit(req shared.FitRequest) (shared.FitResult, error) {
	return b.backend.Fit(req)
}

func (b *PluginBackend) Release() {
	if b.client == nil {
		return
	}
	b.client.Kill()
	b.client = nil
	b.backend = nil
}
