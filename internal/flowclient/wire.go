package flowclient

// Wire structures of the node's flowstarter HTTP API. The nesting mirrors the JSON
// layout the node expects and must not be flattened.

type startFlowRequestWrapper struct {
	RPCStartFlowRequest startFlowRequest `json:"rpcStartFlowRequest"`
}

type startFlowRequest struct {
	ClientID   string                 `json:"clientId"`
	FlowName   string                 `json:"flowName"`
	Parameters startFlowParamsWrapper `json:"parameters"`
}

type startFlowParamsWrapper struct {
	ParametersInJSON string `json:"parametersInJson"`
}

// FlowID is the node generated identifier of a started flow
type FlowID struct {
	UUID string `json:"uuid"`
}

// StartFlowResponse is returned by the startflow endpoint as soon as the flow is
// accepted; the flow itself keeps running on the node.
type StartFlowResponse struct {
	FlowID   FlowID `json:"flowId"`
	ClientID string `json:"clientId"`
}

type flowOutcomeResponse struct {
	Status          string           `json:"status"`
	ResultJSON      *string          `json:"resultJson"`
	ExceptionDigest *exceptionDigest `json:"exceptionDigest"`
}

type exceptionDigest struct {
	ExceptionType string `json:"exceptionType"`
	Message       string `json:"message"`
}
