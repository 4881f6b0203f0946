// Package config loads and validates the mixer service configuration.
//
// Values are resolved in three layers: built-in defaults, the YAML file,
// then GRAYMIXER_* environment variables. Validate reports every problem
// in one error so a broken file can be fixed in a single pass.
//
// Secrets (MQTT password, InfluxDB token) should come from the environment
// rather than the file.
//
// Usage:
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(cfg.API.Port)
package config
