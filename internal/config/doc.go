// Package config handles YAML configuration loading with environment variable substitution.
//
// Configuration files support ${VAR} syntax for environment variable interpolation.
// An optional .env file is loaded first with LoadEnv, so secrets such as the
// access token can live outside the YAML file.
package config
