// Quill CLI - runs Quill scripts with live patching from disk
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/tliron/commonlog"

	"github.com/chazu/quill/history"
	"github.com/chazu/quill/manifest"
	"github.com/chazu/quill/server"
	"github.com/chazu/quill/vm"
)

func main() {
	verbose := flag.Bool("v", false, "Verbose output")
	watch := flag.Bool("watch", false, "Keep running and hot-patch scripts when their files change")
	doDrop := flag.Bool("drop-frames", false, "Restart parked activations of patched functions on new code")
	historyPath := flag.String("history", "", "Path to the script version database (overrides quill.toml)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quill [options] <script.ql> [more scripts...]\n\n")
		fmt.Fprintf(os.Stderr, "Runs Quill scripts. With -watch, edits to the files are applied\n")
		fmt.Fprintf(os.Stderr, "to the running program without restarting it.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  quill app.ql                # Run to completion\n")
		fmt.Fprintf(os.Stderr, "  quill -watch app.ql         # Run and hot-patch on save\n")
		fmt.Fprintf(os.Stderr, "  quill -watch -drop-frames app.ql\n")
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading quill.toml: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		cfg = manifest.Default()
	}

	verbosity := cfg.Project.LogVerbosity
	if *verbose {
		verbosity = 1
	}
	commonlog.Configure(verbosity, nil)
	if *doDrop {
		cfg.Patch.DropFrames = true
	}
	if *historyPath != "" {
		cfg.History.Enabled = true
		cfg.History.Path = *historyPath
	}

	var store *history.Store
	if cfg.History.Enabled {
		store, err = history.Open(cfg.History.Path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening history: %v\n", err)
			os.Exit(1)
		}
		defer store.Close()
	}

	machine := vm.NewVM()
	host := server.NewHost(machine, cfg, store)

	var watcher *server.Watcher
	if *watch {
		watcher, err = server.NewWatcher(host)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error starting watcher: %v\n", err)
			os.Exit(1)
		}
		defer watcher.Close()
	}

	for _, path := range flag.Args() {
		name := scriptName(path)
		source, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading %s: %v\n", path, err)
			os.Exit(1)
		}
		if watcher != nil {
			if _, _, err := host.SpawnScript(name, string(source)); err != nil {
				fmt.Fprintf(os.Stderr, "Error running %s: %v\n", path, err)
				os.Exit(1)
			}
			if err := watcher.Watch(path, name); err != nil {
				fmt.Fprintf(os.Stderr, "Error watching %s: %v\n", path, err)
				os.Exit(1)
			}
		} else if _, err := host.RunScript(name, string(source)); err != nil {
			fmt.Fprintf(os.Stderr, "Error running %s: %v\n", path, err)
			os.Exit(1)
		}
	}

	if *watch {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
	}
}

func scriptName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
