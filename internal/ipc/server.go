package ipc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"webupload/internal/api"
	"webupload/internal/daemon"
	"webupload/internal/engine"
	"webupload/internal/jobstore"
	"webupload/internal/logging"
	"webupload/internal/services"
)

// ServiceName is the JSON-RPC service the daemon registers.
const ServiceName = "WebUpload"

// Server exposes daemon control via JSON-RPC over a Unix domain socket.
type Server struct {
	path      string
	logger    *slog.Logger
	listener  net.Listener
	rpcServer *rpc.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServer configures the IPC server at the given socket path.
func NewServer(ctx context.Context, path string, d *daemon.Daemon, logger *slog.Logger) (*Server, error) {
	if d == nil {
		return nil, errors.New("ipc server requires daemon")
	}
	logger = logging.NewComponentLogger(logger, "ipc")

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("listen on socket: %w", err)
	}

	serverCtx, cancel := context.WithCancel(ctx)
	rpcServer := rpc.NewServer()
	srv := &service{daemon: d, logger: logger, ctx: serverCtx}
	if err := rpcServer.RegisterName(ServiceName, srv); err != nil {
		cancel()
		listener.Close()
		return nil, fmt.Errorf("register rpc service: %w", err)
	}

	return &Server{
		path:      path,
		logger:    logger,
		listener:  listener,
		rpcServer: rpcServer,
		ctx:       serverCtx,
		cancel:    cancel,
	}, nil
}

// Serve starts accepting RPC connections until Close.
func (s *Server) Serve() {
	s.logger.Debug("IPC server listening", logging.String("socket", s.path))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return
				default:
				}
				if errors.Is(err, net.ErrClosed) {
					return
				}
				logging.WarnWithContext(s.logger, "accept failed", "ipc_accept_failed",
					logging.Error(err),
					logging.String(logging.FieldImpact, "IPC clients may fail to connect"),
					logging.String(logging.FieldErrorHint, "check socket permissions and restart webuploadd"),
				)
				continue
			}
			s.wg.Add(1)
			go func(c net.Conn) {
				defer s.wg.Done()
				s.rpcServer.ServeCodec(jsonrpc.NewServerCodec(c))
			}(conn)
		}
	}()
}

// Close stops the server and removes the socket file.
func (s *Server) Close() {
	s.cancel()
	if s.listener != nil {
		_ = s.listener.Close()
	}
	s.wg.Wait()
	if err := os.RemoveAll(s.path); err != nil {
		logging.WarnWithContext(s.logger, "failed to remove socket", "ipc_socket_cleanup_failed",
			logging.String("socket", s.path),
			logging.Error(err),
			logging.String(logging.FieldImpact, "stale IPC socket may block future starts"),
			logging.String(logging.FieldErrorHint, "remove the socket file manually"),
		)
	}
}

type service struct {
	daemon *daemon.Daemon
	logger *slog.Logger
	ctx    context.Context
}

// call returns a request-scoped context and logger tagged with a fresh
// correlation ID.
func (s *service) call(method string) (context.Context, *slog.Logger) {
	ctx := services.WithRequestID(s.ctx, uuid.NewString())
	logger := logging.WithContext(ctx, s.logger).With(logging.String("method", method))
	return ctx, logger
}

func (s *service) Status(_ StatusRequest, resp *StatusResponse) error {
	ctx, _ := s.call("Status")
	status, err := s.daemon.Status(ctx)
	if err != nil {
		return err
	}
	resp.Status = status
	return nil
}

func (s *service) Jobs(req JobsRequest, resp *JobsResponse) error {
	ctx, _ := s.call("Jobs")
	status, err := s.daemon.Status(ctx)
	if err != nil {
		return err
	}
	resp.Live = status.Jobs
	if !req.IncludeStored {
		return nil
	}
	statuses := make([]jobstore.Status, 0, len(req.Statuses))
	for _, raw := range req.Statuses {
		parsed, ok := jobstore.ParseStatus(raw)
		if !ok {
			return services.Wrap(services.ErrValidation, "ipc", "jobs", fmt.Sprintf("unknown status %q", raw), nil)
		}
		statuses = append(statuses, parsed)
	}
	resp.Stored, err = s.daemon.StoredJobs(ctx, statuses...)
	return err
}

func (s *service) Show(req ShowRequest, resp *ShowResponse) error {
	ctx, _ := s.call("Show")
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return services.Wrap(services.ErrValidation, "ipc", "show", "job id is required", nil)
	}
	status, err := s.daemon.Status(ctx)
	if err != nil {
		return err
	}
	for i := range status.Jobs {
		if status.Jobs[i].ID == id {
			live := status.Jobs[i]
			resp.Live = &live
			break
		}
	}
	stored, err := s.daemon.StoredJob(ctx, id)
	switch {
	case err == nil:
		resp.Stored = &stored
	case errors.Is(err, services.ErrNotFound):
		if resp.Live == nil {
			return err
		}
	default:
		return err
	}
	return nil
}

func (s *service) Submit(req SubmitRequest, resp *SubmitResponse) error {
	ctx, logger := s.call("Submit")
	logger.Debug("submit requested",
		logging.String(logging.FieldAccount, req.Account),
		logging.String("job_file", req.JobFile),
		logging.Int("file_count", len(req.Files)),
	)
	job, err := s.daemon.Submit(ctx, engine.SubmitRequest{Account: req.Account, JobFile: req.JobFile, Files: req.Files})
	if err != nil {
		logger.Info("submit rejected", logging.Error(err), logging.String(logging.FieldEventType, "submit_rejected"))
		return err
	}
	resp.Job = job
	logger.Info("job submitted via IPC",
		logging.String(logging.FieldJobID, job.ID),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	return nil
}

func (s *service) Cancel(req JobRequest, resp *JobResponse) error {
	return s.control("Cancel", req, resp, s.daemon.Cancel)
}

func (s *service) Promote(req JobRequest, resp *JobResponse) error {
	return s.control("Promote", req, resp, s.daemon.Promote)
}

func (s *service) Repair(req JobRequest, resp *JobResponse) error {
	return s.control("Repair", req, resp, s.daemon.Repair)
}

func (s *service) control(method string, req JobRequest, resp *JobResponse, fn func(context.Context, string) error) error {
	ctx, logger := s.call(method)
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return services.Wrap(services.ErrValidation, "ipc", strings.ToLower(method), "job id is required", nil)
	}
	if err := fn(ctx, id); err != nil {
		return err
	}
	resp.ID = id
	resp.Applied = true
	logger.Info("job control applied",
		logging.String(logging.FieldJobID, id),
		logging.String(logging.FieldEventType, "job_"+strings.ToLower(method)),
	)
	return nil
}

func (s *service) Recover(req RecoverRequest, resp *RecoverResponse) error {
	ctx, logger := s.call("Recover")
	var (
		count int
		err   error
	)
	if req.Clean {
		count, err = s.daemon.CancelUnfinished(ctx)
	} else {
		count, err = s.daemon.Recover(ctx)
	}
	resp.Count = count
	if err != nil {
		return err
	}
	logger.Info("recovery applied",
		logging.Bool("clean", req.Clean),
		logging.Int("count", count),
		logging.String(logging.FieldEventType, "jobs_recovered"),
	)
	return nil
}

func (s *service) Shutdown(req ShutdownRequest, resp *ShutdownResponse) error {
	_, logger := s.call("Shutdown")
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "ipc request"
	}
	s.daemon.Shutdown(reason)
	resp.Acknowledged = true
	logger.Info("shutdown requested via IPC",
		logging.String("reason", reason),
		logging.String(logging.FieldEventType, "daemon_stop"),
	)
	return nil
}

func (s *service) OptionsUpdate(req OptionsUpdateRequest, resp *OptionsUpdateResponse) error {
	ctx, _ := s.call("OptionsUpdate")
	res, err := s.daemon.UpdateOptions(ctx, req.Account, strings.TrimSpace(req.Option), req.Value)
	if err != nil {
		return err
	}
	resp.Changes = make([]api.AccountOption, 0, len(res.Changes))
	for _, change := range res.Changes {
		resp.Changes = append(resp.Changes, api.FromChange(res.Account, change))
	}
	return nil
}

func (s *service) OptionsList(req OptionsListRequest, resp *OptionsListResponse) error {
	ctx, _ := s.call("OptionsList")
	opts, err := s.daemon.ListOptions(ctx, req.Account)
	if err != nil {
		return err
	}
	resp.Options = opts
	return nil
}
