// Package web holds the dashboard served by the monitor.
package web

import (
	"embed"
	"io/fs"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
)

// DevModeEnv switches GetAssets to read the dashboard from the source tree,
// so edits show up without a rebuild.
const DevModeEnv = "I2C_MONITOR_DEV"

//go:embed dist/*
var dist embed.FS

// GetAssets returns the dashboard files rooted at dist.
func GetAssets() http.FileSystem {
	if devMode() {
		dir := sourceDist()
		log.Printf("monitor: serving dashboard from %s", dir)

		return http.Dir(dir)
	}

	sub, err := fs.Sub(dist, "dist")
	if err != nil {
		log.Panic(err)
	}

	return http.FS(sub)
}

func devMode() bool {
	on, err := strconv.ParseBool(os.Getenv(DevModeEnv))
	return err == nil && on
}

func sourceDist() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		log.Panic("cannot locate the monitor sources")
	}

	return filepath.Join(filepath.Dir(file), "dist")
}
