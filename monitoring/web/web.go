// Package web holds the MMU dashboard served by the monitor.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path"
	"runtime"
	"strings"
	"time"
)

// DevModeEnv names the variable that makes the dashboard load its page from
// the source tree, so it can be edited without rebuilding.
const DevModeEnv = "NEOROM_MONITOR_DEV"

const pageName = "index.html"

//go:embed dist/*
var staticAssets embed.FS

// A Dashboard describes one rendering of the MMU dashboard page.
type Dashboard struct {
	// Components are the MMUs shown on the page, in registration order.
	Components []string

	// Refresh is how often the page polls the MMU statistics.
	Refresh time.Duration
}

type pageData struct {
	Components []string
	RefreshMs  int64
}

// Render writes the dashboard page to w.
func (d Dashboard) Render(w io.Writer) error {
	tmpl, err := loadPage(GetAssets())
	if err != nil {
		return err
	}

	refresh := d.Refresh
	if refresh <= 0 {
		refresh = 2 * time.Second
	}

	components := d.Components
	if components == nil {
		components = []string{}
	}

	return tmpl.Execute(w, pageData{
		Components: components,
		RefreshMs:  refresh.Milliseconds(),
	})
}

func loadPage(assets http.FileSystem) (*template.Template, error) {
	f, err := assets.Open(pageName)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	src, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}

	return template.New(pageName).Parse(string(src))
}

// GetAssets returns the static assets
func GetAssets() http.FileSystem {
	if isDevelopmentMode() {
		_, assetPath, _, ok := runtime.Caller(0)
		if !ok {
			panic("error getting path")
		}

		assetPath = path.Join(path.Dir(assetPath), "/dist")

		fmt.Fprintf(os.Stderr,
			"In monitoring tool development mode, serving assets from %s\n",
			assetPath)

		return http.Dir(assetPath)
	}

	subFS, err := fs.Sub(staticAssets, "dist")
	if err != nil {
		panic(err)
	}

	return http.FS(subFS)
}

func isDevelopmentMode() bool {
	evValue, exist := os.LookupEnv(DevModeEnv)
	if !exist {
		return false
	}

	return strings.ToLower(evValue) == "true" || evValue == "1"
}
