package app

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/rs/zerolog/log"
)

var Version = "0.3.0"

var Info = map[string]any{
	"version": Version,
}

// Init - load configs and setup logger, call it before any other app function
func Init(confs []string) {
	initConfig(confs)
	initLogger()

	log.Logger = Logger

	platform := fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)
	log.Debug().Str("version", Version).Str("platform", platform).Msg("audiopass")
	log.Trace().Str("version", runtime.Version()).Msg("build")

	if ConfigPath != "" {
		log.Debug().Str("path", ConfigPath).Msg("config")
	}
}

// VersionString - version with VCS revision from build info
func VersionString() string {
	var revision string
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" {
				if revision = setting.Value; len(revision) > 7 {
					revision = revision[:7]
				}
				revision = " (" + revision + ")"
			}
		}
	}
	return fmt.Sprintf("audiopass %s%s %s/%s", Version, revision, runtime.GOOS, runtime.GOARCH)
}
