// Package config handles loading and validating the Wolf bridge configuration.
//
// This package manages:
//   - Loading the credentials file (JSON, or YAML by extension)
//   - Overriding with WOLF_* environment variables
//   - Validation of required fields
//   - Default value handling
//
// Security Considerations:
//   - The credentials file holds the portal password in clear text and
//     should have restricted permissions (0600)
//   - WOLF_PASSWORD and WOLF_MQTT_PASSWORD keep secrets out of the file
//
// Usage:
//
//	cfg, err := config.Load("wolf_credentials.json")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.Username)
package config
