package internal

// Version is the release version, overridden at build time with
// -ldflags "-X codeberg.org/snonux/yomibackfill/internal.Version=..."
var Version = "0.3.0"
