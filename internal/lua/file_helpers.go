package lua

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// sanitizeFilename checks for directory traversal and ensures a valid .lua extension.
func sanitizeFilename(name string) (string, error) {
	if !strings.HasSuffix(name, ".lua") {
		return "", errors.New("filename must end with .lua")
	}
	cleanName := filepath.Base(name)
	if cleanName != name || cleanName == ".lua" || strings.Contains(cleanName, "..") {
		return "", errors.New("invalid filename")
	}
	return cleanName, nil
}

// ScriptPath returns the path of a script inside the engine's directory.
func (e *Engine) ScriptPath(name string) (string, error) {
	cleanName, err := sanitizeFilename(name)
	if err != nil {
		return "", err
	}
	return filepath.Join(e.scriptsDir, cleanName), nil
}

// ScriptList returns the .lua files available in the scripts directory.
func (e *Engine) ScriptList() ([]string, error) {
	var scripts []string
	files, err := os.ReadDir(e.scriptsDir)
	if err != nil {
		// A missing directory just means no scripts.
		if os.IsNotExist(err) {
			return scripts, nil
		}
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() && filepath.Ext(file.Name()) == ".lua" {
			scripts = append(scripts, file.Name())
		}
	}
	return scripts, nil
}
