// Package preview renders a generated component into a standalone HTML page.
//
// The component source is untrusted. It only ever reaches the page as a
// JavaScript string literal, is transpiled in the browser, and both the
// transpile and the render step report failures in a visible panel.
package preview

import (
	"bytes"
	"html/template"
	"net/http"
)

// Input is exactly what the sandbox needs: component source and its stylesheet.
type Input struct {
	JSX string `json:"jsx"`
	CSS string `json:"css"`
}

const (
	reactURL    = "https://unpkg.com/react@18/umd/react.development.js"
	reactDOMURL = "https://unpkg.com/react-dom@18/umd/react-dom.development.js"
	babelURL    = "https://unpkg.com/@babel/standalone/babel.min.js"
	tailwindURL = "https://cdn.tailwindcss.com"
)

// Inside the runner script the only actions are the two string literals;
// html/template's JS escaping covers them.
var page = template.Must(template.New("preview").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Component Preview</title>
<script src="{{.ReactURL}}" crossorigin></script>
<script src="{{.ReactDOMURL}}" crossorigin></script>
<script src="{{.BabelURL}}"></script>
<script src="{{.TailwindURL}}"></script>
<style>
body { margin: 0; padding: 16px; font-family: system-ui, sans-serif; }
.preview-error { padding: 16px; border: 1px solid #f87171; background: #fef2f2; color: #991b1b; border-radius: 6px; }
.preview-error h3 { margin: 0 0 8px 0; }
.preview-error pre { white-space: pre-wrap; font-size: 12px; margin: 0; }
</style>
</head>
<body>
<div id="root"></div>
<script>
(function () {
  var source = {{.JSX}};
  var css = {{.CSS}};
  var root = document.getElementById("root");

  function message(err) {
    return String(err && err.message ? err.message : err);
  }

  function showError(title, err) {
    var box = document.createElement("div");
    box.className = "preview-error";
    var h = document.createElement("h3");
    h.textContent = title;
    var pre = document.createElement("pre");
    pre.textContent = message(err);
    box.appendChild(h);
    box.appendChild(pre);
    root.replaceChildren(box);
  }

  if (css) {
    var style = document.createElement("style");
    style.textContent = css;
    document.head.appendChild(style);
  }

  ["useState", "useEffect", "useRef", "useMemo", "useCallback", "useReducer", "useContext", "useLayoutEffect"].forEach(function (name) {
    window[name] = React[name];
  });

  function require(name) {
    if (name === "react") return React;
    if (name === "react-dom" || name === "react-dom/client") return ReactDOM;
    throw new Error("Module not available in preview: " + name);
  }

  var Component;
  try {
    var code = Babel.transform(source, {
      presets: [["typescript", { isTSX: true, allExtensions: true }], "react", ["env", { modules: "commonjs" }]],
      filename: "GeneratedComponent.tsx"
    }).code;
    var module = { exports: {} };
    new Function("React", "ReactDOM", "require", "module", "exports", code)(React, ReactDOM, require, module, module.exports);
    Component = module.exports.default || module.exports;
    if (typeof Component !== "function") {
      throw new Error("The generated code does not export a component.");
    }
  } catch (err) {
    showError("Compilation Error", err);
    return;
  }

  class Boundary extends React.Component {
    constructor(props) {
      super(props);
      this.state = { error: null };
    }
    static getDerivedStateFromError(error) {
      return { error: error };
    }
    render() {
      if (this.state.error) {
        return React.createElement("div", { className: "preview-error" },
          React.createElement("h3", null, "Render Error"),
          React.createElement("pre", null, message(this.state.error)));
      }
      return React.createElement(Component);
    }
  }

  try {
    ReactDOM.createRoot(root).render(React.createElement(Boundary));
  } catch (err) {
    showError("Render Error", err);
  }
})();
</script>
</body>
</html>
`))

type pageData struct {
	ReactURL    string
	ReactDOMURL string
	BabelURL    string
	TailwindURL string
	JSX         string
	CSS         string
}

// Render builds the preview document for in.
func Render(in Input) ([]byte, error) {
	var buf bytes.Buffer
	err := page.Execute(&buf, pageData{
		ReactURL:    reactURL,
		ReactDOMURL: reactDOMURL,
		BabelURL:    babelURL,
		TailwindURL: tailwindURL,
		JSX:         in.JSX,
		CSS:         in.CSS,
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SetSandboxHeaders makes the browser run the document in an opaque origin
// with scripts enabled and nothing else.
func SetSandboxHeaders(h http.Header) {
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Content-Security-Policy", "sandbox allow-scripts")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
}
