package api

import (
	"fmt"
	"net/http"

	"github.com/nextcoding/saas-api/pkg/config"
)

// HandleFavicon renders the brand mark from the logo configuration as a
// 32x32 SVG. The response is immutable: it only changes with a redeploy.
func (h *Handler) HandleFavicon(w http.ResponseWriter, _ *http.Request) {
	svg := buildFaviconSVG(h.app.Logo)

	w.Header().Set("Content-Type", "image/svg+xml")
	w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(svg))
}

func buildFaviconSVG(logo config.Logo) string {
	radius := roundnessRadius(logo.Roundness)

	var mark string
	if logo.Type == config.LogoTypeIcon {
		if path := iconPath(logo.Icon); path != "" {
			mark = fmt.Sprintf(`<path d="%s" fill="%s" transform="translate(8, 8) scale(1)"/>`, path, logo.TextColor)
		}
	}
	if mark == "" {
		mark = fmt.Sprintf(
			`<text x="16" y="22" font-family="Arial, sans-serif" font-size="18" font-weight="bold" text-anchor="middle" fill="%s">%s</text>`,
			logo.TextColor, logo.FirstLetter)
	}

	return fmt.Sprintf(
		`<svg width="32" height="32" viewBox="0 0 32 32" xmlns="http://www.w3.org/2000/svg"><rect width="32" height="32" rx="%s" fill="%s"/>%s</svg>`,
		radius, logo.BackgroundColor, mark)
}

func roundnessRadius(roundness string) string {
	switch roundness {
	case "rounded-none":
		return "0"
	case "rounded-sm":
		return "2"
	case "rounded":
		return "4"
	case "rounded-md":
		return "6"
	case "rounded-lg":
		return "8"
	case "rounded-xl":
		return "12"
	case "rounded-2xl":
		return "16"
	case "rounded-3xl":
		return "24"
	case "rounded-full":
		return "16"
	default:
		return "6"
	}
}

// iconPath returns the SVG path for the named icon; add entries as needed.
func iconPath(name string) string {
	paths := map[string]string{
		"Zap":    "M13 2L3 14h9l-1 8 10-12h-9l1-8z",
		"Code":   "M16 18l6-6-6-6M8 6l-6 6 6 6",
		"Star":   "M12 2l3.09 6.26L22 9.27l-5 4.87 1.18 6.88L12 17.77l-6.18 3.25L7 14.14 2 9.27l6.91-1.01L12 2z",
		"Heart":  "M20.84 4.61a5.5 5.5 0 0 0-7.78 0L12 5.67l-1.06-1.06a5.5 5.5 0 0 0-7.78 7.78l1.06 1.06L12 21.23l7.78-7.78 1.06-1.06a5.5 5.5 0 0 0 0-7.78z",
		"Shield": "M12 22s8-4 8-10V5l-8-3-8 3v7c0 6 8 10 8 10z",
		"Gem":    "M6 3h12l4 6-10 13L2 9l4-6z",
	}
	return paths[name]
}
