// Package config handles loading and validating the access gateway configuration.
//
// This package manages:
//   - Loading configuration from YAML files
//   - Overriding with environment variables
//   - Validation of required fields
//   - Default value handling, including the default terminal endpoint
//
// Security Considerations:
//   - Sensitive values (comm keys, passwords, tokens) should be set via environment variables
//   - The config file should have restricted permissions (0600)
//   - Bearer auth is off until security.jwt.secret is set
//
// Usage:
//
//	cfg, err := config.Load("configs/access.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Terminal.Host)
package config
