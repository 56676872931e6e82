package ipc

import (
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"time"
)

// Client provides RPC access to the daemon.
type Client struct {
	conn   net.Conn
	client *rpc.Client
}

// Dial connects to the IPC server at the given socket path.
func Dial(path string) (*Client, error) {
	conn, err := net.DialTimeout("unix", path, 2*time.Second)
	if err != nil {
		return nil, err
	}
	rpcClient := rpc.NewClientWithCodec(jsonrpc.NewClientCodec(conn))
	return &Client{conn: conn, client: rpcClient}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error {
	if c.client != nil {
		_ = c.client.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func call[Resp any](c *Client, method string, req any) (*Resp, error) {
	var resp Resp
	if err := c.client.Call(ServiceName+"."+method, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status retrieves the daemon status.
func (c *Client) Status() (*StatusResponse, error) {
	return call[StatusResponse](c, "Status", StatusRequest{})
}

// Jobs lists live jobs and, when includeStored is set, stored jobs with the
// given statuses.
func (c *Client) Jobs(includeStored bool, statuses ...string) (*JobsResponse, error) {
	return call[JobsResponse](c, "Jobs", JobsRequest{IncludeStored: includeStored, Statuses: statuses})
}

// Show describes one job.
func (c *Client) Show(id string) (*ShowResponse, error) {
	return call[ShowResponse](c, "Show", ShowRequest{ID: id})
}

// Submit queues a new job.
func (c *Client) Submit(req SubmitRequest) (*SubmitResponse, error) {
	return call[SubmitResponse](c, "Submit", req)
}

// Cancel cancels a queued job.
func (c *Client) Cancel(id string) (*JobResponse, error) {
	return call[JobResponse](c, "Cancel", JobRequest{ID: id})
}

// Promote moves a job to the head of the queue.
func (c *Client) Promote(id string) (*JobResponse, error) {
	return call[JobResponse](c, "Promote", JobRequest{ID: id})
}

// Repair requeues a failed job.
func (c *Client) Repair(id string) (*JobResponse, error) {
	return call[JobResponse](c, "Repair", JobRequest{ID: id})
}

// Recover replays unfinished jobs, or cancels them when clean is set.
func (c *Client) Recover(clean bool) (*RecoverResponse, error) {
	return call[RecoverResponse](c, "Recover", RecoverRequest{Clean: clean})
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown(reason string) (*ShutdownResponse, error) {
	return call[ShutdownResponse](c, "Shutdown", ShutdownRequest{Reason: reason})
}

// OptionsUpdate refreshes account options.
func (c *Client) OptionsUpdate(req OptionsUpdateRequest) (*OptionsUpdateResponse, error) {
	return call[OptionsUpdateResponse](c, "OptionsUpdate", req)
}

// OptionsList lists cached account options.
func (c *Client) OptionsList(account string) (*OptionsListResponse, error) {
	return call[OptionsListResponse](c, "OptionsList", OptionsListRequest{Account: account})
}
