package internal

// Version is the build version, set at build time with
// -ldflags "-X go.vocdoni.io/vaas/internal.Version=v1.0.0".
var Version = "dev"
