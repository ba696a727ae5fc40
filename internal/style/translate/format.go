// Package translate converts style documents between the encodings used by
// OGC API Styles servers and injects or reads their background colour.
package translate

import "strings"

// Style encodings.
const (
	FormatSLD     = "sld"
	FormatMBStyle = "mbstyle"
	FormatCSS     = "css"
)

const DefaultBackgroundColor = "#dddddd"

var mimeFormats = map[string]string{
	"application/vnd.ogc.sld+xml":            FormatSLD,
	"application/vnd.ogc.se+xml":             FormatSLD,
	"application/vnd.geoserver.mbstyle+json": FormatMBStyle,
	"application/vnd.mapbox.style+json":      FormatMBStyle,
	"application/vnd.geoserver.geocss+css":   FormatCSS,
}

var formatMimes = map[string]string{
	FormatSLD:     "application/vnd.ogc.sld+xml",
	FormatMBStyle: "application/vnd.geoserver.mbstyle+json",
	FormatCSS:     "application/vnd.geoserver.geocss+css",
}

// FormatFromMimeType maps a stylesheet media type to its encoding, or "".
// Parameters such as ";version=1.0" are ignored.
func FormatFromMimeType(mime string) string {
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	return mimeFormats[strings.ToLower(strings.TrimSpace(mime))]
}

// MimeTypeFromFormat is the media type used when storing a stylesheet of format.
func MimeTypeFromFormat(format string) string {
	return formatMimes[format]
}

var vectorFormats = map[string]bool{
	"application/vnd.mapbox-vector-tile": true,
	"application/json;type=geojson":      true,
	"application/json;type=topojson":     true,
	"application/geo+json":               true,
}

// IsVectorFormat reports whether a tile media type carries vector data.
func IsVectorFormat(mime string) bool {
	return vectorFormats[strings.ToLower(strings.ReplaceAll(mime, " ", ""))]
}
