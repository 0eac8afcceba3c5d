// Package config loads the configuration of a discovery consumer.
//
// Files are looked up next to the binary (cmd/<name>/config.yml,
// ./<name>.yml, ./config/config.yml, ./config.yml) and a matching .env file
// is loaded into the environment. Environment variables override file
// values; UPPER_SNAKE names map onto nested keys, so PULL_INTERVAL sets
// pull.interval.
//
//	cfg, err := config.Load("discoveryctl", config.WithConfigFile(path))
//	log := cfg.NewLogger()
package config
