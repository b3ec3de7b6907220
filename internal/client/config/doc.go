// Package config loads runtime configuration for the Anansi CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Environment variables, after loading an optional .env file:
//     ANANSI_API_BASE, ANANSI_BACKEND_BASE, ANANSI_AWS_OIDC_CLIENT_ID,
//     ANANSI_AZURE_OIDC_CLIENT_ID.
//  3. Optional JSON file selected via -c/-config or ANANSI_CONFIG.
//  4. Command-line flags, which override everything else.
//
// Supported flags
//
//	-a string   base URL of the Anansi API
//	-b string   base URL of the marketplace backend (defaults to -a)
//	-d string   path of the local SQLite database
//	-l string   listen address of the login callback server
//	-v string   log level
//	-i int      online check interval (seconds)
//
// # JSON schema
//
//	{
//	  "api_base_url": "https://anansi-ilua.onrender.com",
//	  "backend_base_url": "",
//	  "database_path": "anansi.db",
//	  "callback_addr": "127.0.0.1:8765",
//	  "log_level": "info",
//	  "aws_oidc_client_id": "...",
//	  "azure_oidc_client_id": "...",
//	  "cloud_login_timeout": "10m",
//	  "poll_interval": "10s",
//	  "online_check_interval": "30s"
//	}
package config
