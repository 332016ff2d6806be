package stats

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
)

var byteUnits = []string{"Bytes", "KB", "MB", "GB", "TB"}

// formatBytes renders a byte count on a 1024 ladder with up to two decimals,
// trailing zeros trimmed ("190.43 KB", "4 MB", "0 Bytes").
func formatBytes(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}

	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(byteUnits) {
		i = len(byteUnits) - 1
	}
	value := math.Round(float64(bytes)/math.Pow(1024, float64(i))*100) / 100

	return strconv.FormatFloat(value, 'f', -1, 64) + " " + byteUnits[i]
}

// formatCount renders a record count with thousands separators.
func formatCount(n int64) string {
	return humanize.Comma(n)
}
