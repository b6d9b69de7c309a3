package cloudscript

import (
	"fmt"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"
)

// PrepareSource validates guest source and lowers it to the syntax level the
// embedded engine supports. Compile errors surface here, before a sandbox is
// ever allocated for the script.
func PrepareSource(source string, maxSizeKB int) (string, error) {
	if maxSizeKB > 0 && len(source) > maxSizeKB*1024 {
		return "", fmt.Errorf("script exceeds %d KB size limit", maxSizeKB)
	}

	result := esbuild.Transform(source, esbuild.TransformOptions{
		Loader: esbuild.LoaderJS,
		Target: esbuild.ES2020,
	})
	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			if e.Location != nil {
				msgs = append(msgs, fmt.Sprintf("line %d: %s", e.Location.Line, e.Text))
			} else {
				msgs = append(msgs, e.Text)
			}
		}
		return "", fmt.Errorf("compiling script: %s", strings.Join(msgs, "; "))
	}

	return string(result.Code), nil
}
