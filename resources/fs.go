package resources

import (
	"embed"
)

//go:embed migrations badwords.yml
var FS embed.FS
