package shared

import "net/rpc"

// RPCClient is the host-side Backend that forwards calls over RPC.
type RPCClient struct{ client *rpc.Client }

var _ Backend = (*RPCClient)(nil)

func (c *RPCClient) Fit(req FitRequest) (FitResult, error) {
	var resp FitResult
	err := c.client.Call("Plugin.Fit", req, &resp)
	return resp, err
}

// RPCServer wraps the real backend implementation, conforming to the
// requirements of net/rpc.
type RPCServer struct {
	Impl Backend
}

func (s *RPCServer) Fit(req FitRequest, resp *FitResult) error {
	v, err := s.Impl.Fit(req)
	*resp = v
	return err
}
