package notebook

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

const footer = "Generated by TTS AI Pipeline"

// RenderMarkdown renders a note as plain Markdown sections.
func RenderMarkdown(in NoteInput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", in.Title)
	fmt.Fprintf(&sb, "**Created:** %s\n\n", in.Created.Format(displayLayout))

	if fields := in.Metadata.Fields(); len(fields) > 0 {
		sb.WriteString("## Metadata\n\n")
		for _, f := range fields {
			fmt.Fprintf(&sb, "- **%s:** %s\n", f.Key, f.Value)
		}
		sb.WriteString("\n")
	}

	fmt.Fprintf(&sb, "## Summary\n\n%s\n\n", in.Summary)
	fmt.Fprintf(&sb, "## Full Transcription\n\n%s\n\n", in.Transcript)
	sb.WriteString("---\n*" + footer + "*")
	return sb.String()
}

var funcs = template.FuncMap{
	"lines": func(s string) []string { return strings.Split(s, "\n") },
}

const documentTmpl = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; max-width: 800px; margin: 0 auto; padding: 20px; background-color: #f5f5f5; }
        .container { background: white; padding: 30px; border-radius: 8px; box-shadow: 0 2px 10px rgba(0,0,0,0.1); }
        h1 { color: #2c3e50; border-bottom: 2px solid #3498db; padding-bottom: 10px; }
        h2 { color: #34495e; margin-top: 30px; }
        .metadata { background: #ecf0f1; padding: 15px; border-radius: 5px; margin: 20px 0; }
        .summary { background: #d4edda; border: 1px solid #c3e6cb; color: #155724; padding: 15px; border-radius: 5px; margin: 20px 0; }
        .transcription { background: #f8f9fa; border: 1px solid #dee2e6; padding: 15px; border-radius: 5px; margin: 20px 0; }
        .footer { text-align: center; color: #6c757d; font-size: 0.9em; margin-top: 40px; padding-top: 20px; border-top: 1px solid #dee2e6; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <p><strong>Created:</strong> {{.Created}}</p>
{{- if .Fields}}
        <h2>Metadata</h2>
        <div class="metadata">
{{- range .Fields}}
            <p><strong>{{.Key}}:</strong> {{.Value}}</p>
{{- end}}
        </div>
{{- end}}
        <h2>Summary</h2>
        <div class="summary">{{.Summary}}</div>
        <h2>Full Transcription</h2>
        <div class="transcription">{{range $i, $l := lines .Transcript}}{{if $i}}<br>{{end}}{{$l}}{{end}}</div>
        <div class="footer">{{.Footer}}</div>
    </div>
</body>
</html>`

// pageTmpl is the XHTML subset accepted by the OneNote page API.
const pageTmpl = `<!DOCTYPE html>
<html>
<head>
    <title>{{.Title}}</title>
    <meta name="created" content="{{.CreatedISO}}" />
</head>
<body>
    <h1>{{.Title}}</h1>
    <p><strong>Created:</strong> {{.Created}}</p>
{{- if .Fields}}
    <h2>Metadata</h2>
    <ul>
{{- range .Fields}}
        <li><strong>{{.Key}}:</strong> {{.Value}}</li>
{{- end}}
    </ul>
{{- end}}
    <h2>Summary</h2>
    <p>{{.Summary}}</p>
    <h2>Full Transcription</h2>
    <div style="border: 1px solid #ccc; padding: 10px; margin: 10px 0;">{{range $i, $l := lines .Transcript}}{{if $i}}<br />{{end}}{{$l}}{{end}}</div>
</body>
</html>`

var (
	documentTemplate = template.Must(template.New("document").Funcs(funcs).Parse(documentTmpl))
	pageTemplate     = template.Must(template.New("page").Funcs(funcs).Parse(pageTmpl))
)

type view struct {
	Title      string
	Created    string
	CreatedISO string
	Fields     []Field
	Summary    string
	Transcript string
	Footer     string
}

func newView(in NoteInput) view {
	return view{
		Title:      in.Title,
		Created:    in.Created.Format(displayLayout),
		CreatedISO: in.Created.Format("2006-01-02T15:04:05Z07:00"),
		Fields:     in.Metadata.Fields(),
		Summary:    in.Summary,
		Transcript: in.Transcript,
		Footer:     footer,
	}
}

// RenderHTML renders a note as a self-contained styled HTML document.
func RenderHTML(in NoteInput) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, newView(in)); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

// RenderPage renders a note as a OneNote page body.
func RenderPage(in NoteInput) (string, error) {
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, newView(in)); err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	return buf.String(), nil
}
