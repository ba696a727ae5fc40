package model

// Tile media types recognised when choosing a layer's representation.
const (
	MediaMVT  = "application/vnd.mapbox-vector-tile"
	MediaPNG  = "image/png"
	MediaPNG8 = "image/png8"
)

// PickFormat returns the first preferred format offered by urls, falling back
// to the format of the first url. It returns "" when urls is empty.
func PickFormat(urls []TileURL, preferred ...string) string {
	for _, p := range preferred {
		for _, u := range urls {
			if u.Format == p {
				return p
			}
		}
	}
	if len(urls) == 0 {
		return ""
	}
	return urls[0].Format
}
