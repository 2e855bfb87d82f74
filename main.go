package main

import (
	"fmt"
	"log"

	"inkwell/cmd"
	"inkwell/core"
	"inkwell/plugins"
)

func initializeAndRunPlugins(ctx *core.Context) *plugins.BuiltinSearchPlugin {
	fm := ctx.FileManager
	pm := fm.GetPluginManager()
	pm.SetConfig(&ctx.Config)

	pm.RegisterPlugin(&plugins.BuiltinHtmlPlugin{Context: ctx})
	pm.RegisterPlugin(&plugins.BuiltinTextPlugin{})
	pm.RegisterPlugin(plugins.NewMarkdownPlugin(ctx))

	// NewSearchPlugin returns a typed nil when the index cannot be
	// opened; registering that through the interface would hide the
	// failure until the first query
	var search *plugins.BuiltinSearchPlugin
	if params, exists := ctx.Config.Plugins["builtin/search"]; exists {
		if search = plugins.NewSearchPlugin(params); search != nil {
			pm.RegisterPlugin(search)
		}
	}

	// Print all plugins including their priority
	fmt.Println("Plugins:")
	for _, plugin := range pm.ListPlugins() {
		fmt.Printf(" - %s\n", plugin)
	}

	// Then invoke all plugins on the files
	fm.ProcessAllFiles()

	return search
}

func initializeFileManager(ctx *core.Context) error {
	fm := core.NewFileManager(ctx.Config.SiteDirectory)

	// Load the entire "content" directory structure
	err := fm.WalkDirectory("content")
	if err != nil {
		return err
	}

	// ... and the layout directory
	err = fm.WalkDirectory("layout")
	if err != nil {
		return err
	}

	ctx.FileManager = fm
	ctx.PluginManager = fm.GetPluginManager()
	return nil
}

func main() {
	var err error
	var ctx core.Context

	// parse command line arguments
	ctx.Config, err = core.ParseCommandLineArguments()
	if err != nil {
		return
	}

	// If requested, print the version and leave
	if ctx.Config.Mode == "version" {
		cmd.Version()
		return
	}

	// Now read all yaml files
	err = core.InitializeContext(&ctx)
	if err != nil {
		log.Fatalf("Failed to initialize context: %v", err)
	}

	// Scaffolding needs the configuration but not the file tree
	if ctx.Config.Mode == "new" {
		cmd.New(&ctx)
		return
	}

	// Initialize the cached file system
	err = initializeFileManager(&ctx)
	if err != nil {
		log.Fatalf("Failed to initialize lookup index: %v", err)
	}

	// Initialize and run all builtin plugins
	search := initializeAndRunPlugins(&ctx)

	switch ctx.Config.Mode {
	case "build":
		cmd.Build(&ctx)
	case "check":
		cmd.Check(&ctx)
	case "dump":
		// Dump the whole context and the file tree to a directory.
		// This is used for testing (the directory can then be compared
		// to a "golden" set of files, and any deviation is a bug)
		cmd.Dump(&ctx)
	default:
		cmd.Run(&ctx, search)
	}

	if search != nil && ctx.Config.Mode != "run" {
		search.Close()
	}
}
