package proxydispatch

import (
	"embed"
	"fmt"
	"os"
	"strings"
)

//go:embed templates/holding.html
var embeddedTemplates embed.FS

const defaultHoldingTemplatePath = "templates/holding.html"

// HoldingPage renders the holding page body for backend name. The
// tokens are literal placeholders, not html/template actions — the
// spec calls for straightforward substitution, not template
// execution, so a raw byte replace is what's actually correct here.
type HoldingPage struct {
	raw string
}

// LoadHoldingPage reads the holding page template. overridePath, from
// HOLDING_PAGE_PATH, takes precedence over the embedded default.
func LoadHoldingPage(overridePath string) (*HoldingPage, error) {
	if overridePath != "" {
		data, err := os.ReadFile(overridePath)
		if err != nil {
			return nil, fmt.Errorf("proxydispatch: reading holding page %s: %w", overridePath, err)
		}
		return &HoldingPage{raw: string(data)}, nil
	}

	data, err := embeddedTemplates.ReadFile(defaultHoldingTemplatePath)
	if err != nil {
		return nil, fmt.Errorf("proxydispatch: reading embedded holding page: %w", err)
	}
	return &HoldingPage{raw: string(data)}, nil
}

// Render substitutes {{REDIRECT_URL}} and {{CONTAINER_NAME}} per
// spec.md §6.
func (h *HoldingPage) Render(backendPath, backendHost, containerName string) string {
	redirectURL := fmt.Sprintf("https://%s.%s", backendPath, backendHost)

	out := strings.ReplaceAll(h.raw, "{{REDIRECT_URL}}", redirectURL)
	out = strings.ReplaceAll(out, "{{CONTAINER_NAME}}", containerName)
	return out
}
