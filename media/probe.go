package media

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ProbeResult is what is known about a track before acquisition.
// Unknown values are flagged, never reported as zero.
type ProbeResult struct {
	Title           string
	DurationSeconds float64
	DurationKnown   bool
	SizeBytes       int64
	SizeKnown       bool
}

type infoJSON struct {
	Title    string       `json:"title"`
	Duration *float64     `json:"duration"`
	Formats  []formatJSON `json:"formats"`
}

type formatJSON struct {
	FormatID       string   `json:"format_id"`
	ACodec         string   `json:"acodec"`
	VCodec         string   `json:"vcodec"`
	ABR            *float64 `json:"abr"`
	FileSize       *float64 `json:"filesize"`
	FileSizeApprox *float64 `json:"filesize_approx"`
}

// parseInfo decodes yt-dlp -j output. Size is taken from the audio-only
// format with the highest bitrate.
func parseInfo(data []byte) (ProbeResult, error) {
	var info infoJSON
	if err := json.Unmarshal(data, &info); err != nil {
		return ProbeResult{}, fmt.Errorf("parse track info: %w", err)
	}

	res := ProbeResult{Title: info.Title}
	if info.Duration != nil && *info.Duration > 0 {
		res.DurationSeconds = *info.Duration
		res.DurationKnown = true
	}

	best, ok := bestAudio(info.Formats)
	if !ok {
		return res, nil
	}
	switch {
	case positive(best.FileSize):
		res.SizeBytes = int64(*best.FileSize)
		res.SizeKnown = true
	case positive(best.FileSizeApprox):
		res.SizeBytes = int64(*best.FileSizeApprox)
		res.SizeKnown = true
	}
	return res, nil
}

func bestAudio(formats []formatJSON) (formatJSON, bool) {
	var (
		best  formatJSON
		found bool
	)
	for _, f := range formats {
		if f.ACodec == "none" || f.VCodec != "none" {
			continue
		}
		if !found || abr(f) > abr(best) {
			best = f
			found = true
		}
	}
	return best, found
}

func abr(f formatJSON) float64 {
	if f.ABR == nil {
		return 0
	}
	return *f.ABR
}

func positive(v *float64) bool {
	return v != nil && *v > 0 && !math.IsInf(*v, 0)
}

type ffprobeFormat struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseFormatDuration(data []byte) (ProbeResult, error) {
	var out ffprobeFormat
	if err := json.Unmarshal(data, &out); err != nil {
		return ProbeResult{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	var res ProbeResult
	cleaned := strings.TrimSpace(out.Format.Duration)
	if cleaned == "" || cleaned == "N/A" {
		return res, nil
	}
	d, err := strconv.ParseFloat(cleaned, 64)
	if err != nil || math.IsNaN(d) || d <= 0 {
		return res, nil
	}
	res.DurationSeconds = d
	res.DurationKnown = true
	return res, nil
}
