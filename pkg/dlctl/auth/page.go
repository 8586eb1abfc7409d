package auth

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/Masterminds/sprig/v3"
)

const callbackPageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{ .Product | title }} login</title>
</head>
<body style="font-family: sans-serif; margin: 3em;">
<h2>{{ .Heading }}</h2>
<p>{{ .Message | trim }}</p>
<p style="color: #666;">{{ .Product }} {{ .Version | default "dev" }}</p>
</body>
</html>
`

var callbackPage = template.Must(template.New("callback").Funcs(sprig.FuncMap()).Parse(callbackPageTemplate))

type callbackPageData struct {
	Product string
	Version string
	Heading string
	Message string
}

// RenderCallbackPage renders the static page served to the browser on redirect.
func RenderCallbackPage(heading, message, productVersion string) ([]byte, error) {
	var buf bytes.Buffer
	err := callbackPage.Execute(&buf, callbackPageData{
		Product: "dlctl",
		Version: productVersion,
		Heading: heading,
		Message: message,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to render callback page: %w", err)
	}
	return buf.Bytes(), nil
}

func defaultCallbackPage(productVersion string) []byte {
	page, err := RenderCallbackPage(
		"Authorization received",
		"You can close this window and return to dlctl. The login finishes in the terminal.",
		productVersion,
	)
	if err != nil {
		return []byte("<html><body>Authorization received. You can close this window.</body></html>")
	}
	return page
}
