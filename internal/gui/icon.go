package gui

import (
	"fyne.io/fyne/v2"
)

const iconSVG = `<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 64 64">
<rect x="4" y="8" width="40" height="48" rx="4" fill="#3f6fb5"/>
<rect x="20" y="4" width="40" height="48" rx="4" fill="#f4f1e8" stroke="#3f6fb5" stroke-width="3"/>
<path d="M30 18h20M30 28h20M30 38h12" stroke="#c0392b" stroke-width="4" stroke-linecap="round"/>
</svg>`

// GetAppIcon returns the application icon as a Fyne resource
func GetAppIcon() fyne.Resource {
	return &fyne.StaticResource{
		StaticName:    "yomibackfill.svg",
		StaticContent: []byte(iconSVG),
	}
}
