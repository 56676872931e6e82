package testsupport

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"webupload/internal/wire"
)

const (
	// HelperEnv marks a re-executed test binary as a fake worker.
	HelperEnv = "GO_WANT_HELPER_PROCESS"
	// ModeEnv selects the fake worker behaviour.
	ModeEnv = "WEBUPLOAD_FAKE_WORKER_MODE"
	// RecordEnv names a file the fake worker appends received opcodes to.
	RecordEnv = "WEBUPLOAD_FAKE_WORKER_RECORD"
)

// Fake worker modes.
const (
	ModeUploadOK      = "upload-ok"
	ModeUploadWait    = "upload-wait"
	ModeUploadCrash   = "upload-crash"
	ModeUploadFail    = "upload-fail"
	ModeUploadReject  = "upload-reject"
	ModeDoneThenCrash = "done-then-crash"
	ModeHang          = "hang"
	ModeCloseOutput   = "close-output"
	ModeIgnoreStop    = "ignore-stop"
	ModeOptionsOK     = "options-ok"
	ModeOptionsFail   = "options-fail"
)

// HelperCommand returns a command builder that re-executes the current test
// binary as a fake worker running mode. The helper test named testName must
// call RunFakeWorkerIfHelper.
func HelperCommand(testName, mode, recordPath string) func(name string, args ...string) *exec.Cmd {
	return func(name string, args ...string) *exec.Cmd {
		cmd := exec.Command(os.Args[0], "-test.run=^"+testName+"$")
		cmd.Env = append(os.Environ(),
			HelperEnv+"=1",
			ModeEnv+"="+mode,
			RecordEnv+"="+recordPath,
		)
		return cmd
	}
}

// RunFakeWorkerIfHelper runs the fake worker and exits when the process was
// started by HelperCommand. It returns immediately otherwise.
func RunFakeWorkerIfHelper() {
	if os.Getenv(HelperEnv) != "1" {
		return
	}
	os.Exit(runFakeWorker(os.Getenv(ModeEnv), os.Getenv(RecordEnv), os.Stdin, os.Stdout))
}

func runFakeWorker(mode, recordPath string, in io.Reader, out io.Writer) int {
	if mode == ModeHang {
		// Ignore Stop and EOF alike until killed.
		go func() { _, _ = io.Copy(io.Discard, in) }()
		time.Sleep(time.Hour)
		return 0
	}

	if mode == ModeCloseOutput {
		// Report one message, close stdout and keep running until killed.
		_ = wire.WriteMessage(out, wire.SendingMedia{Index: 0})
		if closer, ok := out.(io.Closer); ok {
			_ = closer.Close()
		}
		go func() { _, _ = io.Copy(io.Discard, in) }()
		time.Sleep(time.Hour)
		return 0
	}

	send := func(msg wire.Message) {
		_ = wire.WriteMessage(out, msg)
	}
	decoder := wire.NewDecoder()
	buf := make([]byte, 4096)
	for {
		n, err := in.Read(buf)
		for _, msg := range decoder.Feed(buf[:n]) {
			record(recordPath, msg)
			if code, exit := respond(mode, msg, send); exit {
				return code
			}
		}
		if err != nil {
			if mode == ModeIgnoreStop {
				time.Sleep(time.Hour)
			}
			return 0
		}
	}
}

func respond(mode string, msg wire.Message, send func(wire.Message)) (int, bool) {
	switch m := msg.(type) {
	case wire.StartUpload:
		switch mode {
		case ModeUploadOK:
			send(wire.SendingMedia{Index: 0})
			send(wire.Progress{Fraction: 0.5})
			send(wire.SendingMedia{Index: 1})
			send(wire.Progress{Fraction: 1})
			send(wire.Done{})
			return 0, true
		case ModeUploadWait, ModeIgnoreStop:
			send(wire.SendingMedia{Index: 0})
			send(wire.Progress{Fraction: 0.25})
		case ModeUploadCrash:
			send(wire.SendingMedia{Index: 0})
			return 3, true
		case ModeUploadFail:
			send(wire.UploadFailed{Error: wire.ErrorRecord{Kind: 1, Message: "network unreachable"}})
			return 0, true
		case ModeUploadReject:
			send(wire.UploadFailed{Error: wire.ErrorRecord{Kind: 5, Code: 403, Message: "quota exceeded", Hint: "free space on the service"}})
			return 0, true
		case ModeDoneThenCrash:
			send(wire.Done{})
			return 1, true
		}
	case wire.Stop:
		if mode == ModeIgnoreStop {
			return 0, false
		}
		send(wire.Stopped{})
		return 0, true
	case wire.UpdateAll:
		return optionsReply(mode, m.AccountID, "album", wire.StringVariant("Holidays"), send)
	case wire.Update:
		return optionsReply(mode, m.AccountID, m.OptionID, wire.StringVariant("refreshed"), send)
	case wire.AddValue:
		return optionsReply(mode, m.AccountID, m.OptionID, wire.StringVariant(m.Value), send)
	}
	return 0, false
}

func optionsReply(mode, accountID, optionID string, value wire.Variant, send func(wire.Message)) (int, bool) {
	if mode == ModeOptionsFail {
		send(wire.UpdateFailed{ErrorCode: 7, FailedIDs: []string{optionID}})
		return 0, true
	}
	send(wire.OptionValueChanged{Name: optionID, Value: value, MediaIndex: -1})
	send(wire.Done{})
	return 0, true
}

func record(path string, msg wire.Message) {
	if path == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return
	}
	defer f.Close()
	line := msg.Opcode().String()
	if start, ok := msg.(wire.StartUpload); ok {
		line += " " + start.JobPath
	}
	fmt.Fprintln(f, line)
}
