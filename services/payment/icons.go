package payment

import (
	"image"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// NoneIconCode is the placeholder icon shown before a card type is detected.
const NoneIconCode = "NONE"

// Icon describes one card type image.
type Icon struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// IconSource finds card type icons on disk. The result is computed once and
// reused while it is non-empty.
type IconSource struct {
	dir     string
	baseURL string
	codes   []string

	mu    sync.Mutex
	icons map[string]Icon
}

func NewIconSource(dir, baseURL string, codes []string) *IconSource {
	return &IconSource{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		codes:   codes,
	}
}

// Icons returns the icons found for the configured card types plus NONE.
// Card types without an image file are left out.
func (s *IconSource) Icons() map[string]Icon {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.icons) > 0 {
		return s.icons
	}

	icons := make(map[string]Icon)
	if s.dir == "" {
		return icons
	}

	codes := append(append([]string{}, s.codes...), NoneIconCode)
	for _, code := range codes {
		if _, ok := icons[code]; ok {
			continue
		}
		name := strings.ToUpper(code) + ".png"
		width, height, err := imageSize(filepath.Join(s.dir, name))
		if err != nil {
			if !os.IsNotExist(err) {
				log.Printf("Error reading icon %s: %v", name, err)
			}
			continue
		}
		icons[code] = Icon{
			URL:    s.baseURL + "/" + name,
			Width:  width,
			Height: height,
		}
	}

	s.icons = icons
	return icons
}

func imageSize(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}
