// Command devwatch watches kernel/**/*.go and *.s for changes and re-runs a
// build command on every save, the dev-loop companion to serialmon.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

func exit(err error) {
	fmt.Fprintf(os.Stderr, "[devwatch] error: %s\n", err.Error())
	os.Exit(1)
}

func watchableFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".go" || ext == ".s"
}

// addTreeWatches registers every directory under root with w, since fsnotify
// watches are not recursive on their own.
func addTreeWatches(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func runBuild(cmdLine string) {
	fields := strings.Fields(cmdLine)
	cmd := exec.Command(fields[0], fields[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "[devwatch] build failed: %s\n", err.Error())
	}
}

// debounce collapses a burst of fsnotify events (an editor often emits
// several per save) into a single rebuild.
func debounce(events <-chan fsnotify.Event, errs <-chan error, cmdLine string) {
	var timer *time.Timer
	reset := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(150*time.Millisecond, func() { runBuild(cmdLine) })
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if watchableFile(ev.Name) {
				reset()
			}
		case err, ok := <-errs:
			if !ok {
				return
			}
			fmt.Fprintf(os.Stderr, "[devwatch] watch error: %s\n", err.Error())
		}
	}
}

func run(root, cmdLine string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addTreeWatches(w, root); err != nil {
		return err
	}

	debounce(w.Events, w.Errors, cmdLine)
	return nil
}

func main() {
	root := flag.String("root", "kernel", "directory tree to watch")
	cmdLine := flag.String("cmd", "go vet ./...", "command to run on change")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, "devwatch: rebuild on every kernel source change\n\n")
		fmt.Fprint(os.Stderr, "Usage: devwatch [options]\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *root == "" {
		exit(errors.New("-root must not be empty"))
	}

	if err := run(*root, *cmdLine); err != nil {
		exit(err)
	}
}
