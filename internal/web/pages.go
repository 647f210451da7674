package web

import (
	"encoding/base64"
	"fmt"
	"html/template"
	"strings"

	"github.com/straja-ai/soundlens/internal/content"
	"github.com/straja-ai/soundlens/internal/pipeline"
)

// IndexPage is the upload form.
type IndexPage struct {
	Formats []string
	Error   string
}

// Accept is the file input accept attribute, e.g. ".wav,.mp3".
func (p IndexPage) Accept() string {
	exts := make([]string, len(p.Formats))
	for i, f := range p.Formats {
		exts[i] = "." + f
	}
	return strings.Join(exts, ",")
}

// FormatList is a human readable list of accepted formats.
func (p IndexPage) FormatList() string {
	return strings.ToUpper(strings.Join(p.Formats, ", "))
}

// Bar is one probability bar.
type Bar struct {
	Label     string
	Width     string // CSS width, p*100%
	Value     string // p with four decimals
	Predicted bool
}

// Media is a captioned image or video.
type Media struct {
	URL     string
	Caption string
}

// ResultPage shows the spectrogram, probabilities and the label's content.
type ResultPage struct {
	RequestID   string
	Label       string
	Spectrogram template.URL
	Bars        []Bar
	Images      []Media
	Videos      []Media
	Texts       []string
	Fallback    bool
	Truncated   bool
	Formats     []string
}

// NewResultPage converts a pipeline outcome into template data.
func NewResultPage(out *pipeline.Outcome, formats []string) ResultPage {
	page := ResultPage{
		RequestID: out.RequestID,
		Fallback:  out.Fallback,
		Truncated: out.Truncated,
		Formats:   formats,
		Texts:     append([]string(nil), out.Content.Texts...),
	}
	if len(out.PNG) > 0 {
		// The data URI is built from our own PNG bytes.
		page.Spectrogram = template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(out.PNG))
	}
	if out.Result != nil {
		page.Label = out.Result.Label
		for i, lp := range out.Result.Probabilities {
			page.Bars = append(page.Bars, Bar{
				Label:     lp.Label,
				Width:     fmt.Sprintf("%.2f%%", lp.Prob*100),
				Value:     fmt.Sprintf("%.4f", lp.Prob),
				Predicted: i == out.Result.Index,
			})
		}
	}
	for _, img := range out.Content.Images {
		page.Images = append(page.Images, Media{URL: img, Caption: "Image: " + page.Label})
	}
	for _, v := range out.Content.Videos {
		page.Videos = append(page.Videos, Media{URL: content.EmbedURL(v), Caption: "YouTube: " + page.Label})
	}
	return page
}

// AboutRow is one row of the about table.
type AboutRow struct {
	Name  string
	Value string
}

// AboutPage is the static information page.
type AboutPage struct {
	Rows   []AboutRow
	Labels []string
}
