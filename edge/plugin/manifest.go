package plugin

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ghuser/xscontrol/pkg/model"
)

const manifestFile = "plugin.manifest"

// discoverManifests finds every immediate subdirectory of root containing
// a plugin.manifest file and parses it into a PluginDescriptor.
func discoverManifests(root string) ([]model.PluginDescriptor, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read plugin root %s: %w", root, err)
	}

	var descs []model.PluginDescriptor
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		manPath := filepath.Join(root, entry.Name(), manifestFile)
		fields, err := parseManifest(manPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		descs = append(descs, model.PluginDescriptor{
			Name:        fields["name"],
			Version:     fields["version"],
			Description: fields["description"],
			BundlePath:  manPath,
		})
	}
	return descs, nil
}

// parseManifest reads a "key: value" text manifest, one field per line.
func parseManifest(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fields := map[string]string{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan manifest %s: %w", path, err)
	}
	if fields["name"] == "" {
		return nil, fmt.Errorf("manifest %s missing required 'name' field", path)
	}
	return fields, nil
}
