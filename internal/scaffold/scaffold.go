// Package scaffold writes starter files into new route directories.
package scaffold

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"text/template"

	"github.com/broady/routetree/internal/tree"
)

var (
	indexTmpl = template.Must(template.New("index").Parse(`package {{.}}

type Methods struct {
	Get struct {
		ResBody string
	}
}
`))

	controllerTmpl = template.Must(template.New("controller").Parse(`package {{.}}

import (
	"net/http"

	"github.com/broady/routetree"
)

var Controller = DefineController(func(router routetree.Router) ControllerMethods {
	return ControllerMethods{
		Get: func(req *GetRequest) (*GetResponse, error) {
			return &GetResponse{Status: http.StatusOK, Body: "Hello"}, nil
		},
	}
})
`))

	hooksTmpl = template.Must(template.New("hooks").Parse(`package {{.}}

import (
	"log/slog"
	"net/http"

	"github.com/broady/routetree"
)

var Hooks = DefineHooks(func(router routetree.Router) routetree.Hooks {
	return routetree.Hooks{
		OnRequest: []routetree.HookFunc{
			func(w http.ResponseWriter, r *http.Request) error {
				slog.InfoContext(r.Context(), "Directory level onRequest hook", "url", r.URL.String())
				return nil
			},
		},
	}
})
`))
)

// Ensure writes default files into dir.
//
// An empty directory gets an index.go declaring a Get method with a string
// body and, if missing, a controller.go answering "Hello". An existing but
// empty hooks.go is replaced with a hook that only logs. Files with content
// are never touched.
func Ensure(dir, pkgName string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	empty := len(entries) == 0

	if empty {
		if err := writeIfMissing(filepath.Join(dir, tree.IndexFile), indexTmpl, pkgName); err != nil {
			return err
		}
		if err := writeIfMissing(filepath.Join(dir, tree.ControllerFile), controllerTmpl, pkgName); err != nil {
			return err
		}
	}

	hooksPath := filepath.Join(dir, tree.HooksFile)
	data, err := os.ReadFile(hooksPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil
	case err != nil:
		return err
	case len(data) == 0:
		return render(hooksPath, hooksTmpl, pkgName)
	}
	return nil
}

func writeIfMissing(path string, tmpl *template.Template, pkgName string) error {
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return render(path, tmpl, pkgName)
}

func render(path string, tmpl *template.Template, pkgName string) error {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, pkgName); err != nil {
		return err
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}
