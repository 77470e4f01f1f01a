package infra

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
)

// GetWorkDir resolves and creates the bot's state directory under the
// user's home, optionally joined with extra path segments.
func GetWorkDir(path ...string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		log.Fatalln(err)
	}
	parts := append([]string{home, ".modguard"}, path...)
	workDir := filepath.Join(parts...)
	if err = os.MkdirAll(workDir, os.ModePerm); err != nil {
		log.Fatalln(err)
	}
	return workDir
}
