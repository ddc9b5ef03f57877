package config

// Set at build time with -ldflags "-X hydrogen.im/hydrogen-worker/config.Version=...".
var (
	Version   = "dev"
	BuildHash = ""
)
