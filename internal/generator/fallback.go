package generator

import (
	"encoding/json"
	"fmt"
)

const rawPreviewRunes = 500

// jsString renders s as a JSON string literal. Inside a JSX expression
// container ({...}) it is inert text, whatever the model or transport produced.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func parseFallback(raw string) Source {
	excerpt := truncateRunes(raw, rawPreviewRunes) + "..."
	return Source{
		JSX: fmt.Sprintf(`export default function GeneratedComponent() {
  return (
    <div className="p-4 bg-red-100 border border-red-400 rounded">
      <h2 className="text-red-800 font-bold">AI Response Parse Error</h2>
      <pre className="text-sm mt-2 text-red-700">{%s}</pre>
    </div>
  );
}`, jsString(excerpt)),
	}
}

func serviceFallback(err error) Source {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Source{
		JSX: fmt.Sprintf(`export default function ErrorComponent() {
  return (
    <div className="p-6 bg-red-50 border border-red-200 rounded-lg">
      <h2 className="text-red-800 font-bold mb-2">AI Service Error</h2>
      <p className="text-red-700">
        Sorry, there was an error generating your component. Please try again.
      </p>
      <details className="mt-2">
        <summary className="cursor-pointer text-red-600">Error Details</summary>
        <pre className="text-xs mt-1 text-red-500">{%s}</pre>
      </details>
    </div>
  );
}`, jsString(msg)),
	}
}
