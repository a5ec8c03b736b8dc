package reference

import (
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadOptionCatalogs читает все *.yaml/*.yml из dir.
// Отсутствующая папка: пустой каталог.
func LoadOptionCatalogs(dir string) (map[string]OptionCatalog, error) {
	result := make(map[string]OptionCatalog)
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return result, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")) {
			continue
		}
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		var cat OptionCatalog
		if err := yaml.Unmarshal(data, &cat); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		// имя справочника: из файла, если не задано внутри
		catName := cat.Name
		if catName == "" {
			catName = strings.TrimSuffix(name, filepath.Ext(name))
		}
		cat.Name = catName
		if _, dup := result[catName]; dup {
			return nil, fmt.Errorf("duplicate option catalog %q (%s)", catName, path)
		}
		result[catName] = cat
	}
	return result, nil
}

// sortItems: сначала с явным order по возрастанию, потом без order в порядке файла
func sortItems(items []OptionItem) {
	key := func(it OptionItem) int {
		if it.Order > 0 {
			return it.Order
		}
		return math.MaxInt
	}
	sort.SliceStable(items, func(i, j int) bool { return key(items[i]) < key(items[j]) })
}
