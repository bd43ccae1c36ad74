package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/objidx/internal/flagx"
	"github.com/dmitrijs2005/objidx/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON unmarshalling.
// Durations use timex.Duration, which accepts both strings such as "1h" and
// integer nanoseconds. Booleans are pointers so that an absent key leaves the
// current value alone.
//
// This struct is an intermediate DTO used only for reading JSON configuration
// files. After unmarshalling, the fields present in the file are copied into
// the runtime Config.
type JsonConfig struct {
	EndpointAddrHTTP string         `json:"endpoint_addr_http"`
	DatabaseDSN      string         `json:"database_dsn"`
	SecretKey        string         `json:"secret_key"`
	S3RootUser       string         `json:"s3_root_user"`
	S3RootPassword   string         `json:"s3_root_password"`
	S3Region         string         `json:"s3_region"`
	S3BaseEndpoint   string         `json:"s3_base_endpoint"`
	StorageServer    string         `json:"storage_server"`
	Buckets          []string       `json:"buckets"`
	PresignExpiry    timex.Duration `json:"presign_expiry"`
	PresignUploads   *bool          `json:"presign_uploads"`
	VerifyCompletion *bool          `json:"verify_completion"`
	RedisURL         string         `json:"redis_url"`
	LogBackend       string         `json:"log_backend"`
	LogLevel         string         `json:"log_level"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags. If
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics.
//
// The caller is expected to merge these values with defaults and
// command-line flags as part of the full configuration process.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.StorageServer, c.StorageServer)
	setString(&config.RedisURL, c.RedisURL)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)

	if c.Buckets != nil {
		config.Buckets = c.Buckets
	}
	if c.PresignExpiry.Duration > 0 {
		config.PresignExpiry = c.PresignExpiry.Duration
	}
	if c.PresignUploads != nil {
		config.PresignUploads = *c.PresignUploads
	}
	if c.VerifyCompletion != nil {
		config.VerifyCompletion = *c.VerifyCompletion
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
