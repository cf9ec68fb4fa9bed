package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/suPer8Hu/ai-component-studio/internal/ai"
)

type scriptedProvider struct {
	reply string
	err   error
	last  []ai.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	_ = ctx
	p.last = append([]ai.Message(nil), messages...)
	return p.reply, p.err
}

func newTestGenerator(p ai.Provider) *Generator {
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		_ = model
		return p, nil
	})
	return New(reg, "fake", "default")
}

func TestRun_ParsesFencedJSON(t *testing.T) {
	p := &scriptedProvider{reply: "Here you go:\n```json\n{\"jsx\":\"export default function A(){return <b/>}\",\"css\":\".a{}\"}\n```\nenjoy"}
	g := newTestGenerator(p)

	res := g.Run(context.Background(), "a button", nil, nil)
	require.Equal(t, Parsed, res.Outcome)
	require.Equal(t, "export default function A(){return <b/>}", res.Source.JSX)
	require.Equal(t, ".a{}", res.Source.CSS)
}

func TestRun_ParsesWholeReply(t *testing.T) {
	p := &scriptedProvider{reply: `  {"jsx":"X"}  `}
	res := newTestGenerator(p).Run(context.Background(), "x", nil, nil)
	require.Equal(t, Parsed, res.Outcome)
	require.Equal(t, Source{JSX: "X", CSS: ""}, res.Source)
}

func TestRun_EmptyObjectYieldsEmptyFields(t *testing.T) {
	p := &scriptedProvider{reply: `{}`}
	res := newTestGenerator(p).Run(context.Background(), "x", nil, nil)
	require.Equal(t, Parsed, res.Outcome)
	require.Equal(t, Source{}, res.Source)
}

func TestRun_NonStringFieldIsParseFailure(t *testing.T) {
	p := &scriptedProvider{reply: `{"jsx": 42, "css": ""}`}
	res := newTestGenerator(p).Run(context.Background(), "x", nil, nil)
	require.Equal(t, ParseFallback, res.Outcome)
}

func TestRun_MalformedReplyFallsBack(t *testing.T) {
	raw := strings.Repeat("é", 600) + `</pre>"}); alert(1); ({`
	p := &scriptedProvider{reply: raw}

	res := newTestGenerator(p).Run(context.Background(), "x", nil, nil)
	require.Equal(t, ParseFallback, res.Outcome)
	require.NoError(t, res.Err)
	require.Contains(t, res.Source.JSX, "export default function GeneratedComponent()")
	require.Contains(t, res.Source.JSX, "AI Response Parse Error")
	require.Contains(t, res.Source.JSX, "{\""+strings.Repeat("é", 500)+"...\"}")
	require.NotContains(t, res.Source.JSX, "alert(1)")
	require.Empty(t, res.Source.CSS)
}

func TestRun_ProviderErrorFallsBack(t *testing.T) {
	p := &scriptedProvider{err: errors.New(`401 "unauthorized" </pre>`)}

	res := newTestGenerator(p).Run(context.Background(), "x", nil, nil)
	require.Equal(t, ServiceFallback, res.Outcome)
	require.Error(t, res.Err)
	require.Contains(t, res.Source.JSX, "export default function ErrorComponent()")
	require.Contains(t, res.Source.JSX, "AI Service Error")
	require.Contains(t, res.Source.JSX, `{"401 \"unauthorized\" \u003c/pre\u003e"}`)
	require.Empty(t, res.Source.CSS)
}

func TestRun_UnknownProviderFallsBack(t *testing.T) {
	g := New(ai.NewRegistry(), "missing", "")
	res := g.Run(context.Background(), "x", nil, nil)
	require.Equal(t, ServiceFallback, res.Outcome)
	require.ErrorContains(t, res.Err, "unknown ai provider")
}

func TestGenerate_FreshPromptShape(t *testing.T) {
	p := &scriptedProvider{reply: `{"jsx":"A","css":""}`}
	g := newTestGenerator(p)

	recent := []Turn{
		{Role: "user", Content: "1"},
		{Role: "assistant", Content: "2"},
		{Role: "user", Content: "3"},
		{Role: "assistant", Content: "4"},
		{Role: "user", Content: "5"},
		{Role: "assistant", Content: "6"},
		{Role: "user", Content: "7"},
	}
	src := g.Generate(context.Background(), "a card", nil, recent)
	require.Equal(t, "A", src.JSX)

	require.Len(t, p.last, 1+5+1)
	require.Equal(t, ai.RoleSystem, p.last[0].Role)
	require.Contains(t, p.last[0].Content, `"jsx" and "css"`)
	for i, want := range []string{"3", "4", "5", "6", "7"} {
		require.Equal(t, want, p.last[1+i].Content)
	}
	last := p.last[len(p.last)-1]
	require.Equal(t, ai.RoleUser, last.Role)
	require.Equal(t, "Generate a React component: a card", last.Content)
}

func TestRefine_EmbedsCurrentComponent(t *testing.T) {
	p := &scriptedProvider{reply: `{"jsx":"B","css":""}`}
	g := newTestGenerator(p)

	current := Source{JSX: "export default function A(){return <div/>}", CSS: ".x{}"}
	src := g.Refine(context.Background(), current, "make it red", nil)
	require.Equal(t, "B", src.JSX)

	require.Len(t, p.last, 2)
	want := "Current component code: {\"jsx\":\"export default function A(){return <div/>}\",\"css\":\".x{}\"}\n\n" +
		"User request: make it red\n\n" +
		"Please modify the existing component based on the user's request."
	require.Equal(t, want, p.last[1].Content)
}

func TestParseReply_FencedFailureTriesWholeText(t *testing.T) {
	src, ok := parseReply("```\n{not json}\n```")
	require.False(t, ok)
	require.Equal(t, Source{}, src)

	src, ok = parseReply(`{"jsx":"ok","note":"` + "```{x}```" + `"}`)
	require.True(t, ok)
	require.Equal(t, "ok", src.JSX)
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "parsed", Parsed.String())
	require.Equal(t, "parse_fallback", ParseFallback.String())
	require.Equal(t, "service_fallback", ServiceFallback.String())
}
