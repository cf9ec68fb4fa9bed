package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const componentName = "GeneratedComponent"

type packageJSON struct {
	Name            string            `json:"name"`
	Version         string            `json:"version"`
	Dependencies    map[string]string `json:"dependencies"`
	DevDependencies map[string]string `json:"devDependencies"`
}

var manifest = packageJSON{
	Name:    "generated-component",
	Version: "1.0.0",
	Dependencies: map[string]string{
		"react":            "^18.0.0",
		"react-dom":        "^18.0.0",
		"@types/react":     "^18.0.0",
		"@types/react-dom": "^18.0.0",
	},
	DevDependencies: map[string]string{
		"typescript": "^5.0.0",
	},
}

type entry struct {
	name string
	body []byte
}

// Bundle is a ready-to-download archive.
type Bundle struct {
	FileName string
	Data     []byte
}

// Build packs a component into a zip: the .tsx source, the stylesheet when it
// has content, package.json and a README.
func Build(sessionName, jsx, css string, modTime time.Time) (*Bundle, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	hasCSS := strings.TrimSpace(css) != ""

	pkg, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, err
	}

	files := []entry{{componentName + ".tsx", []byte(jsx)}}
	if hasCSS {
		files = append(files, entry{componentName + ".css", []byte(css)})
	}
	files = append(files,
		entry{"package.json", pkg},
		entry{"README.md", []byte(readme(hasCSS))},
	)

	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, Modified: modTime})
		if err != nil {
			return nil, fmt.Errorf("zip %s: %w", f.name, err)
		}
		if _, err := w.Write(f.body); err != nil {
			return nil, fmt.Errorf("zip %s: %w", f.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return &Bundle{FileName: FileName(sessionName), Data: buf.Bytes()}, nil
}

var unsafeFileChars = regexp.MustCompile(`[\\/:*?"<>|\x00-\x1f]+`)

// FileName is "<session name>.zip", or "component.zip" for a blank name.
func FileName(sessionName string) string {
	name := strings.TrimSpace(unsafeFileChars.ReplaceAllString(sessionName, "_"))
	if name == "" {
		name = "component"
	}
	return name + ".zip"
}

func readme(hasCSS bool) string {
	var b strings.Builder
	b.WriteString("# Generated Component\n\n")
	b.WriteString("This component was generated using the AI Component Generator.\n\n")
	b.WriteString("## Installation\n\n```bash\nnpm install\n```\n\n")
	b.WriteString("## Usage\n\n```tsx\n")
	fmt.Fprintf(&b, "import %s from './%s'\n\nfunction App() {\n  return <%s />\n}\n```\n\n", componentName, componentName, componentName)
	b.WriteString("## Files\n\n")
	fmt.Fprintf(&b, "- `%s.tsx` - The main component\n", componentName)
	if hasCSS {
		fmt.Fprintf(&b, "- `%s.css` - Custom styles\n", componentName)
	}
	b.WriteString("- `package.json` - Dependencies\n")
	return b.String()
}
