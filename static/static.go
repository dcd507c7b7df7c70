package static

import (
	"embed"
)

//go:embed *.js *.html *.css
var FS embed.FS
