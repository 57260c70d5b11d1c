package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mb0/glob"
	"github.com/pkg/errors"

	"github.com/go-go-golems/mangiafuoco/pkg/inference/tools"
)

// maxFileBytes caps read_file output so a model cannot pull an entire
// binary into the conversation.
const maxFileBytes = 256 * 1024

const commandTimeout = 2 * time.Minute

type ReadFileInput struct {
	FilePath string `json:"file_path"`
	Offset   int    `json:"offset,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

type ListFilesInput struct {
	Dir     string `json:"dir,omitempty"`
	Pattern string `json:"pattern,omitempty"`
}

type RunCommandInput struct {
	Command string `json:"command"`
}

func registerBuiltinTools(registry tools.ToolRegistry) error {
	defs := []struct {
		name, description string
		fn                any
	}{
		{"read_file", "Read a file from disk. Returns the file content, optionally a line range via offset and limit.", readFile},
		{"list_files", "List files under a directory, optionally filtered by a glob pattern.", listFiles},
		{"run_command", "Run a shell command and return its combined output.", runCommand},
	}
	for _, d := range defs {
		def, err := tools.NewToolFromFunc(d.name, d.description, d.fn)
		if err != nil {
			return errors.Wrapf(err, "build %s", d.name)
		}
		if err := registry.RegisterTool(def.Name, *def); err != nil {
			return errors.Wrapf(err, "register %s", d.name)
		}
	}
	return nil
}

func readFile(_ context.Context, in ReadFileInput) (string, error) {
	data, err := os.ReadFile(in.FilePath)
	if err != nil {
		return "", err
	}
	if len(data) > maxFileBytes {
		data = data[:maxFileBytes]
	}
	content := string(data)
	if in.Offset > 0 || in.Limit > 0 {
		lines := strings.Split(content, "\n")
		start := in.Offset
		if start > len(lines) {
			start = len(lines)
		}
		end := len(lines)
		if in.Limit > 0 && start+in.Limit < end {
			end = start + in.Limit
		}
		content = strings.Join(lines[start:end], "\n")
	}
	return content, nil
}

func listFiles(ctx context.Context, in ListFilesInput) (string, error) {
	dir := in.Dir
	if dir == "" {
		dir = "."
	}
	var matches []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = path
		}
		if in.Pattern != "" {
			if ok, err := glob.Match(in.Pattern, rel); err != nil || !ok {
				return nil
			}
		}
		matches = append(matches, rel)
		return nil
	})
	if err != nil {
		return "", err
	}
	sort.Strings(matches)
	return strings.Join(matches, "\n"), nil
}

func runCommand(ctx context.Context, in RunCommandInput) (string, error) {
	if strings.TrimSpace(in.Command) == "" {
		return "", errors.New("command is empty")
	}
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", in.Command)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("%s: %s", err, strings.TrimSpace(string(out)))
	}
	return string(out), nil
}
