package core

import (
	"os"
	"path/filepath"
)

type Context struct {
	Authors       Authors
	Config        Config
	Navigation    Navigation
	FileManager   *FileManager
	PluginManager *PluginManager
	Watcher       *SiteWatcher
}

func InitializeContext(ctx *Context) error {
	var err error

	// read site.yaml
	configFilePath := filepath.Join(ctx.Config.SiteDirectory, "config", "site.yaml")
	err = ReadConfigYaml(&ctx.Config, configFilePath)
	if err != nil {
		return err
	}

	// read authors.yaml; a single-author site can leave it out
	authorsFilePath := filepath.Join(ctx.Config.SiteDirectory, "config", "authors.yaml")
	if _, statErr := os.Stat(authorsFilePath); statErr == nil {
		ctx.Authors, err = ReadAuthorsYaml(authorsFilePath)
		if err != nil {
			return err
		}
	}

	// read navigation.yaml; without it the header renders no menu
	navFilePath := filepath.Join(ctx.Config.SiteDirectory, "config", "navigation.yaml")
	if _, statErr := os.Stat(navFilePath); statErr == nil {
		ctx.Navigation, err = ReadNavigationYaml(navFilePath)
		if err != nil {
			return err
		}
	}

	return nil
}
