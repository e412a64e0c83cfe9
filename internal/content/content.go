package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// StyleDescriptor is one CMS-authored style or discover record. The records
// are versioned content produced at build time and read-only at runtime.
type StyleDescriptor struct {
	Slug      string `json:"-"`
	Title     string `json:"title"`
	Cover     string `json:"cover"`
	Prompt    string `json:"prompt"`
	Order     int    `json:"order"`
	HasPrompt bool   `json:"hasPrompt"`
}

// Header is the hero-section content, including the cosmetic loading phrases
// the generation session rotates through.
type Header struct {
	Title          string   `json:"title"`
	CTAButtonText  string   `json:"ctaButtonText"`
	SpecialPrompt  string   `json:"specialPrompt"`
	LoadingPhrases []string `json:"loadingPhrases"`
}

// Library holds all loaded content records.
type Library struct {
	Header   Header
	Styles   []StyleDescriptor
	Discover []StyleDescriptor
}

// Load reads header.json plus the styles/ and discover/ record directories
// under dir. Missing pieces degrade to defaults; content is presentation, not
// correctness.
func Load(dir string) (*Library, error) {
	lib := &Library{
		Header: Header{
			CTAButtonText:  "Try a Style",
			LoadingPhrases: []string{"Loading"},
		},
	}

	headerPath := filepath.Join(dir, "header.json")
	if data, err := os.ReadFile(headerPath); err == nil {
		if err := json.Unmarshal(data, &lib.Header); err != nil {
			return nil, fmt.Errorf("parse %s: %w", headerPath, err)
		}
		if len(lib.Header.LoadingPhrases) == 0 {
			lib.Header.LoadingPhrases = []string{"Loading"}
		}
	}

	var err error
	if lib.Styles, err = loadRecords(filepath.Join(dir, "styles")); err != nil {
		return nil, err
	}
	if lib.Discover, err = loadRecords(filepath.Join(dir, "discover")); err != nil {
		return nil, err
	}

	return lib, nil
}

// StyleBySlug finds a style record across both collections.
func (l *Library) StyleBySlug(slug string) *StyleDescriptor {
	for _, set := range [][]StyleDescriptor{l.Styles, l.Discover} {
		for i := range set {
			if set[i].Slug == slug {
				record := set[i]
				return &record
			}
		}
	}
	return nil
}

func loadRecords(dir string) ([]StyleDescriptor, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read content dir %s: %w", dir, err)
	}

	var records []StyleDescriptor
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		var record StyleDescriptor
		if err := json.Unmarshal(data, &record); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		record.Slug = strings.TrimSuffix(entry.Name(), ".json")
		records = append(records, record)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Order < records[j].Order
	})
	return records, nil
}
