package preflight

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

const defaultProbeTimeout = 3 * time.Second

// CheckReachable opens and closes a TCP connection to address.
func CheckReachable(ctx context.Context, name, address string, timeout time.Duration) Result {
	result := Result{Name: name}
	if address == "" {
		result.Detail = "probe address not configured"
		return result
	}
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := (&net.Dialer{}).DialContext(dialCtx, "tcp", address)
	if err != nil {
		result.Detail = address + " " + describeDialError(err)
		return result
	}
	_ = conn.Close()
	result.Passed = true
	result.Detail = address + " reachable"
	return result
}

// CheckDirectoryAccess passes when path is a directory the engine can list,
// create files in and traverse.
func CheckDirectoryAccess(name, path string) Result {
	result := Result{Name: name}
	problem := directoryProblem(path)
	if problem != "" {
		result.Detail = fmt.Sprintf("%s (error: %s)", path, problem)
		return result
	}
	result.Passed = true
	result.Detail = path + " (read/write ok)"
	return result
}

func directoryProblem(path string) string {
	info, err := os.Stat(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "does not exist"
	case err != nil:
		return fmt.Sprintf("stat: %v", err)
	case !info.IsDir():
		return "is not a directory"
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return fmt.Sprintf("insufficient permissions: %v", err)
	}
	return ""
}

func describeDialError(err error) string {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return "timed out"
	case errors.Is(err, unix.ECONNREFUSED):
		return "refused the connection"
	default:
		return fmt.Sprintf("unreachable (%v)", err)
	}
}
