package flowclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/mavleo96/notary-doublespend/internal/models"
	log "github.com/sirupsen/logrus"
)

const (
	startFlowPath   = "/api/v1/flowstarter/startflow"
	flowOutcomePath = "/api/v1/flowstarter/flowoutcome"

	defaultHTTPTimeout = 30 * time.Second
	// DefaultMaxResponseBytes bounds a single response body
	DefaultMaxResponseBytes int64 = 64 << 20
)

// Credentials are the RPC user credentials sent with basic authentication
type Credentials struct {
	Username string
	Password string
}

// Client talks to the flowstarter HTTP API of a node.
// A single Client is safe for concurrent use by all node tasks.
type Client struct {
	http    *http.Client
	logger  log.FieldLogger
	maxBody int64
}

// NewClient creates a flow client. A nil httpClient gets a default client with a
// per-request timeout.
func NewClient(httpClient *http.Client, logger log.FieldLogger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultHTTPTimeout}
	}
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Client{http: httpClient, logger: logger, maxBody: DefaultMaxResponseBytes}
}

// SetMaxResponseBytes changes the response body limit. Non-positive values restore the default.
func (c *Client) SetMaxResponseBytes(n int64) {
	if n <= 0 {
		n = DefaultMaxResponseBytes
	}
	c.maxBody = n
}

// StartFlowURL returns the startflow endpoint of the node at address
func StartFlowURL(address string) string {
	return "http://" + address + startFlowPath
}

// FlowOutcomeURL returns the flowoutcome endpoint of the node at address
func FlowOutcomeURL(address string) string {
	return "http://" + address + flowOutcomePath
}

// StartFlow sends a single start request for flowName with params serialised as the
// flow's JSON parameters. It returns as soon as the node accepted the flow.
func (c *Client) StartFlow(ctx context.Context, creds Credentials, endpoint, flowName, clientID string, params any) (StartFlowResponse, error) {
	c.logger.Debugf("Building start flow request: %s, with clientId: %s", flowName, clientID)

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return StartFlowResponse{}, fmt.Errorf("encode parameters of flow %s: %w", flowName, err)
	}
	body, err := json.Marshal(startFlowRequestWrapper{
		RPCStartFlowRequest: startFlowRequest{
			ClientID:   clientID,
			FlowName:   flowName,
			Parameters: startFlowParamsWrapper{ParametersInJSON: string(paramsJSON)},
		},
	})
	if err != nil {
		return StartFlowResponse{}, fmt.Errorf("encode start request of flow %s: %w", flowName, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return StartFlowResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(creds.Username, creds.Password)

	c.logger.Debugf("Sending start flow request to: %s", endpoint)
	status, payload, err := c.do(req)
	if err != nil {
		return StartFlowResponse{}, fmt.Errorf("start flow %s at %s: %w", flowName, endpoint, err)
	}
	if !isSuccess(status) {
		c.logger.Errorf("Starting flow %s failed. Cause: %s, error code %d", flowName, payload, status)
		return StartFlowResponse{}, &RemoteStartError{FlowName: flowName, StatusCode: status, Body: string(payload)}
	}

	var resp StartFlowResponse
	if err := defaultValidator.decode(schemaStartFlow, payload, &resp); err != nil {
		return StartFlowResponse{}, fmt.Errorf("start flow %s: %w", flowName, err)
	}
	c.logger.Debugf("Flow %s started, tracking id: %s", flowName, resp.FlowID.UUID)
	return resp, nil
}

// GetFlowOutcome fetches the current outcome of a flow with a single GET request
func (c *Client) GetFlowOutcome(ctx context.Context, creds Credentials, endpoint, flowID string) (models.Outcome, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/"+url.PathEscape(flowID), nil)
	if err != nil {
		return models.Outcome{}, err
	}
	req.SetBasicAuth(creds.Username, creds.Password)

	status, payload, err := c.do(req)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("query flow %s at %s: %w", flowID, endpoint, err)
	}
	if !isSuccess(status) {
		c.logger.Errorf("Flow %s outcome check failed. Cause: %s, error code %d", flowID, payload, status)
		return models.Outcome{}, &RemoteQueryError{FlowID: flowID, StatusCode: status, Body: string(payload)}
	}

	var resp flowOutcomeResponse
	if err := defaultValidator.decode(schemaFlowOutcome, payload, &resp); err != nil {
		return models.Outcome{}, fmt.Errorf("query flow %s: %w", flowID, err)
	}
	outcome, err := toOutcome(resp)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("query flow %s: %w", flowID, err)
	}
	c.logger.Debugf("Flow %s outcome received: %s", flowID, outcome.Status)
	return outcome, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	payload, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return 0, nil, fmt.Errorf("read response body: %w", err)
	}
	if int64(len(payload)) > c.maxBody {
		return 0, nil, &ResponseTooLargeError{URL: req.URL.String(), Limit: c.maxBody}
	}
	return resp.StatusCode, payload, nil
}

func toOutcome(resp flowOutcomeResponse) (models.Outcome, error) {
	status, err := models.ParseOutcomeStatus(resp.Status)
	if err != nil {
		return models.Outcome{}, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	outcome := models.Outcome{Status: status}
	switch status {
	case models.StatusCompleted:
		if resp.ResultJSON != nil {
			outcome.ResultPayload = json.RawMessage(*resp.ResultJSON)
		}
	case models.StatusFailed:
		digest := models.ExceptionDigest{}
		if resp.ExceptionDigest != nil {
			digest.ExceptionType = resp.ExceptionDigest.ExceptionType
			digest.Message = resp.ExceptionDigest.Message
		}
		outcome.Failure = &digest
	}
	return outcome, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status <= 299
}
