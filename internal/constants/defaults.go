package constants

// Default dispatch configuration values
const (
	DefaultDispatchSpec     = "@every 1m"
	DefaultRecipientDelayMs = 5000
	DefaultSendsPerSecond   = 1.0
	DefaultSendBurst        = 3
)

// Default timeout and retry values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultGatewayRetryCount     = 3
	DefaultDatabaseRetryAttempts = 3
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultGracefulShutdownSec   = 30
	DefaultEventReconnectSec     = 5
	DefaultEventMaxReconnectSec  = 60
)

// Default server configuration values
const (
	DefaultServerPort            = 8084
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
)

// Credential encryption parameters
const (
	CredentialSecretEnvVar = "WACAST_CREDENTIAL_SECRET"
	PBKDF2Iterations       = 100000
	EncryptionKeySize      = 32
	MinSecretLength        = 16
)
