package config

import (
	"flag"
	"os"
	"strings"
	"time"

	"github.com/dmitrijs2005/objidx/internal/flagx"
)

var (
	valueFlags = []string{"-a", "-d", "-s", "-u", "-p", "-g", "-e", "-S", "-b", "-x", "-r", "-l", "-L"}
	boolFlags  = []string{"-P", "-v"}
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key (empty disables auth)
//	-u string   S3 root user
//	-p string   S3 root password
//	-g string   S3 region
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-S string   storage server reported in locators
//	-b string   comma-separated bucket allow-list
//	-x int      presign expiry, seconds
//	-r string   Redis URL for the presign cache
//	-l string   log backend (slog|zerolog)
//	-L string   log level
//	-P          include presigned PUT URLs in upload locators
//	-v          verify the stored blob before completing an object
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgsWithBools, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgsWithBools(os.Args[1:], valueFlags, boolFlags)

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.StorageServer, "S", config.StorageServer, "storage server reported in locators")

	buckets := fs.String("b", strings.Join(config.Buckets, ","), "comma-separated bucket allow-list")
	presignExpiry := fs.Int("x", int(config.PresignExpiry.Seconds()), "presign expiry (in seconds)")

	fs.StringVar(&config.RedisURL, "r", config.RedisURL, "redis URL for presign cache")
	fs.StringVar(&config.LogBackend, "l", config.LogBackend, "log backend (slog|zerolog)")
	fs.StringVar(&config.LogLevel, "L", config.LogLevel, "log level")
	fs.BoolVar(&config.PresignUploads, "P", config.PresignUploads, "presign upload URLs")
	fs.BoolVar(&config.VerifyCompletion, "v", config.VerifyCompletion, "verify blobs on completion")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.Buckets = splitList(*buckets)
	config.PresignExpiry = time.Duration(*presignExpiry) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
