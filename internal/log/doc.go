// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// privpath runs commands such as "ipsec status" and "wg show" and may log
// their output, and operators often run it from shells holding gcloud
// credentials. The SecureHandler masks:
//   - Google OAuth access and refresh tokens (ya29., 1//)
//   - Google API keys (AIza...)
//   - Bearer tokens and JWTs
//   - Service account private keys
//   - IPsec pre-shared keys and WireGuard keys
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of secrets in logs that may be shared or stored.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true) // verbose=true
//
//	logger.Debug("command stderr",
//	    "command", "ipsec status",
//	    "stderr", stderr, // embedded PSKs are masked in place
//	)
//
//	slog.SetDefault(logger)
package log
