// Package shared defines the contract between the orchestrator and external
// training backends. Backends run as separate processes (typically Python
// wrappers around the actual training libraries) and are reached through
// hashicorp/go-plugin over net/rpc.
package shared

import (
	"net/rpc"

	"github.com/hashicorp/go-plugin"
)

// Handshake is shared between the host and backend plugins so a mismatched
// binary is rejected before any call is made.
var Handshake = plugin.HandshakeConfig{
	ProtocolVersion:  1,
	MagicCookieKey:   "AUTOML_TRAINER_PLUGIN",
	MagicCookieValue: "d2f1c7a3",
}

const BackendPluginName = "trainer_backend"

var PluginMap = map[string]plugin.Plugin{
	BackendPluginName: &BackendPlugin{},
}

// FitRequest describes one training run to a backend. The dataset file and
// model directory are already materialized by the adapter; the backend's
// only filesystem contract is to write its weights file into ModelDir.
type FitRequest struct {
	DatasetPath string
	ModelDir    string

	BaseModel string
	Framework string

	// Labels is the ordered label list; classification and NER datasets
	// encode labels as indices into it.
	Labels []string

	// ExtraArgs are backend-specific knobs passed through opaquely.
	ExtraArgs map[string]string
}

type FitResult struct {
	TrainingLoss float64
}

// Backend fits a model on a materialized dataset and reports the final
// training loss.
type Backend interface {
	Fit(req FitRequest) (FitResult, error)
}

// BackendPlugin implements plugin.Plugin for the Backend interface over
// net/rpc.
type BackendPlugin struct {
	Impl Backend
}

func (p *BackendPlugin) Server(*plugin.MuxBroker) (interface{}, error) {
	return &RPCServer{Impl: p.Impl}, nil
}

func (p *BackendPlugin) Client(b *plugin.MuxBroker, c *rpc.Client) (interface{}, error) {
	return &RPCClient{client: c}, nil
}
