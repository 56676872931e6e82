package config

const (
	defaultConfigPath         = "~/.config/webupload/config.toml"
	defaultStateDir           = "~/.local/share/webupload"
	defaultWorkersDir         = "/usr/lib/webupload/workers"
	defaultAPIBind            = "127.0.0.1:7491"
	defaultIdleExitSeconds    = 60
	defaultMaxAttempts        = 5
	defaultStopTimeoutSeconds = 3
	defaultMinFreeMiB         = 64
	defaultProbeAddress       = "1.1.1.1:443"
	defaultProbeInterval      = 15
	defaultProbeTimeout       = 3
	defaultDeviceSubsystem    = "android_usb"
	defaultDeviceStateKey     = "USB_STATE"
	defaultDeviceEnterValue   = "CONFIGURED"
	defaultDeviceLeaveValue   = "DISCONNECTED"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

var defaultProcessTypes = []string{"image/jpeg", "image/png", "image/heic", "video/mp4", "video/quicktime"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		// log_dir and staging_dir default to subdirectories of state_dir.
		Paths: Paths{
			StateDir: defaultStateDir,
			APIBind:  defaultAPIBind,
		},
		Engine: Engine{
			IdleExitSeconds: defaultIdleExitSeconds,
			MaxAttempts:     defaultMaxAttempts,
		},
		Worker: Worker{
			WorkersDir:         defaultWorkersDir,
			StopTimeoutSeconds: defaultStopTimeoutSeconds,
		},
		Services: map[string]Service{},
		Preprocess: Preprocess{
			Enabled:      true,
			MinFreeMiB:   defaultMinFreeMiB,
			ProcessTypes: append([]string(nil), defaultProcessTypes...),
		},
		Connectivity: Connectivity{
			ProbeAddress:    defaultProbeAddress,
			IntervalSeconds: defaultProbeInterval,
			TimeoutSeconds:  defaultProbeTimeout,
		},
		Device: Device{
			Subsystem:  defaultDeviceSubsystem,
			StateKey:   defaultDeviceStateKey,
			EnterValue: defaultDeviceEnterValue,
			LeaveValue: defaultDeviceLeaveValue,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
