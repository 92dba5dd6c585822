package memory

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// CoreFile keeps core memory as one entry per line in a text file.
type CoreFile struct {
	path string
	mu   sync.Mutex
}

// NewCoreFile returns a core memory backed by path. The file is created on
// first write.
func NewCoreFile(path string) *CoreFile {
	return &CoreFile{path: path}
}

// Lines returns the current entries.
func (c *CoreFile) Lines() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.read()
}

// Render implements the numbered rendering used in prompts.
func (c *CoreFile) Render(_ context.Context) (string, error) {
	lines, err := c.Lines()
	if err != nil {
		return "", err
	}
	return RenderCore(lines), nil
}

// Add appends an entry.
func (c *CoreFile) Add(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, err := c.read()
	if err != nil {
		return err
	}
	return c.write(append(lines, singleLine(text)))
}

// Update replaces entry index.
func (c *CoreFile) Update(_ context.Context, index int, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, err := c.read()
	if err != nil {
		return err
	}
	if index < 0 || index >= len(lines) {
		return ErrIndexOutOfRange
	}
	lines[index] = singleLine(text)
	return c.write(lines)
}

// Remove deletes entry index and returns it.
func (c *CoreFile) Remove(_ context.Context, index int) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lines, err := c.read()
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(lines) {
		return "", ErrIndexOutOfRange
	}
	removed := lines[index]
	lines = append(lines[:index], lines[index+1:]...)
	return removed, c.write(lines)
}

func (c *CoreFile) read() ([]string, error) {
	f, err := os.Open(c.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open core memory: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func (c *CoreFile) write(lines []string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return err
	}
	var content string
	if len(lines) > 0 {
		content = strings.Join(lines, "\n") + "\n"
	}
	return writeFileAtomic(c.path, []byte(content))
}

// writeFileAtomic writes data to a temp file and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
