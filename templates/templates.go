package templates

import (
	_ "embed"
	"html/template"
	"log"
)

var (
	//go:embed designer.html
	designerSource string
	//go:embed share.html
	shareSource string
	//go:embed notfound.html
	notFoundSource string
	//go:embed error.html
	errorSource string
)

var (
	Designer *template.Template
	Share    *template.Template
	NotFound *template.Template
	Error    *template.Template
)

// DesignerData feeds the designer page.
type DesignerData struct {
	Width    int
	Height   int
	Families []string
}

// ShareData feeds the share page for one session.
type ShareData struct {
	ExportURL string
	QRURL     string
}

func init() {
	Designer = parse("designer", designerSource)
	Share = parse("share", shareSource)
	NotFound = parse("notfound", notFoundSource)
	Error = parse("error", errorSource)
}

func parse(name, text string) *template.Template {
	tmpl, err := template.New(name).Parse(text)

	if err != nil {
		log.Fatal(err)
	}

	return tmpl
}
