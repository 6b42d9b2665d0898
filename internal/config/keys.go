package config

// Configuration key constants to prevent typos and enable autocomplete
const (
	// Operator answers, saved after each prompt
	KeySSHHost         = "ssh_host"
	KeyRemoteParentDir = "remote_parent_dir"
	KeyPort            = "port"
	KeyProxyIPAddress  = "proxy_ip_address"

	// Monitoring
	KeyPollInterval    = "poll_interval"
	KeyMaxPollFailures = "max_poll_failures"

	// SSH and rsync
	KeyCommandTimeout = "command_timeout"
	KeyConnectTimeout = "connect_timeout"
	KeySyncTimeout    = "sync_timeout"

	// Logging
	KeyLogLevel  = "log_level"
	KeyLogFormat = "log_format"
)

// DefaultPort is the service port offered when none has been saved.
const DefaultPort = 8228

// Default values for configuration keys
var Defaults = map[string]string{
	KeyPort:            "8228",
	KeyPollInterval:    "5s",
	KeyMaxPollFailures: "3",
	KeyCommandTimeout:  "30s",
	KeyConnectTimeout:  "10s",
	KeySyncTimeout:     "60s",
	KeyLogLevel:        "INFO",
	KeyLogFormat:       "JSON",
}
