package flowclient

import (
	"context"

	"github.com/google/uuid"
	"github.com/mavleo96/notary-doublespend/internal/models"
)

// Node binds the shared client to one node address and its credentials
type Node struct {
	client  *Client
	address string
	creds   Credentials
}

// ForNode returns a flow service bound to the node at address
func (c *Client) ForNode(address string, creds Credentials) *Node {
	return &Node{client: c, address: address, creds: creds}
}

// Address returns the host:port of the node
func (n *Node) Address() string {
	return n.address
}

// Start starts flowName on the node with a fresh client request id and returns the
// handle of the running flow
func (n *Node) Start(ctx context.Context, flowName string, params any) (models.OperationHandle, error) {
	resp, err := n.client.StartFlow(ctx, n.creds, StartFlowURL(n.address), flowName, uuid.NewString(), params)
	if err != nil {
		return "", err
	}
	return models.OperationHandle(resp.FlowID.UUID), nil
}

// Outcome fetches the current outcome of the flow identified by handle
func (n *Node) Outcome(ctx context.Context, handle models.OperationHandle) (models.Outcome, error) {
	return n.client.GetFlowOutcome(ctx, n.creds, FlowOutcomeURL(n.address), string(handle))
}
