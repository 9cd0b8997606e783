package handler

import (
	"mime"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

// Default descriptor names.
const (
	NameWebVideo  = "web_video"
	NamePDF       = "pdf"
	NameImage     = "image"
	NameFlash     = "flash"
	NameVideo     = "video"
	NameAudio     = "audio"
	NameSlideshow = "slideshow"
	NameHTMLPage  = "html_page"
)

// Extension sets recognized by the default descriptors.
var (
	ImageExts = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp"}
	VideoExts = []string{".mp4", ".webm", ".ogv"}
	AudioExts = []string{".mp3", ".ogg", ".wav"}
	PageExts  = []string{"", ".htm", ".html", ".xhtml", ".php", ".asp", ".aspx", ".jsp"}
)

// WebVideoHosts are video platforms whose players cannot be archived.
var WebVideoHosts = []string{"youtube.com", "youtu.be", "vimeo.com"}

// DefaultsOptions configures the default descriptor set.
type DefaultsOptions struct {
	// SlideshowHosts enables the slideshow descriptor for these hosts.
	SlideshowHosts []string
	// SlideSelector selects slide images on a slideshow page.
	SlideSelector string
	// SlideSource is shown as the attribution on generated slideshows.
	SlideSource string
	// PageHosts are the hosts whose pages are mirrored as sub-documents,
	// subdomains included. Pages elsewhere are left to the unrecognized
	// fallback. Empty disables sub-document mirroring.
	PageHosts []string
}

// Defaults returns the default descriptors in priority order.
func Defaults(opts DefaultsOptions) []Descriptor {
	descriptors := []Descriptor{
		{
			Name:          NameWebVideo,
			Kind:          Standalone,
			Test:          HostIn(WebVideoHosts...),
			NonEmbeddable: true,
		},
		{
			Name:       NamePDF,
			Kind:       Leaf,
			Test:       HasExt(".pdf"),
			Directory:  archive.DirDocs,
			DefaultExt: ".pdf",
			Node:       EmbedNode,
		},
		{
			Name:       NameImage,
			Kind:       Leaf,
			Test:       HasExt(ImageExts...),
			Directory:  archive.DirImages,
			DefaultExt: ".png",
			Node:       ImageNode,
		},
		{
			Name:          NameFlash,
			Kind:          Leaf,
			Test:          HasExt(".swf"),
			NonEmbeddable: true,
		},
		{
			Name:       NameVideo,
			Kind:       Standalone,
			Test:       HasExt(VideoExts...),
			Directory:  archive.DirVideos,
			DefaultExt: ".mp4",
			Node:       VideoNode,
		},
		{
			Name:       NameAudio,
			Kind:       Standalone,
			Test:       HasExt(AudioExts...),
			Directory:  archive.DirAudio,
			DefaultExt: ".mp3",
			Node:       AudioNode,
		},
	}

	if len(opts.SlideshowHosts) > 0 {
		descriptors = append(descriptors, Slideshow(opts.SlideshowHosts, opts.SlideSelector, opts.SlideSource))
	}

	onSite := HostIn(opts.PageHosts...)
	return append(descriptors, Descriptor{
		Name: NameHTMLPage,
		Kind: SubDocument,
		Test: func(raw string) bool {
			return isPage(raw) && onSite(raw)
		},
	})
}

func isPage(raw string) bool {
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		return false
	}
	ext := urlresolve.Ext(raw)
	for _, e := range PageExts {
		if ext == e {
			return true
		}
	}
	return false
}

// NewElement builds a detached element with attributes given as key, value
// pairs.
func NewElement(a atom.Atom, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, DataAtom: a, Data: a.String()}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// ImageNode replaces a framed image with an img element.
func ImageNode(ref, _ string) *html.Node {
	return NewElement(atom.Img, "src", ref, "style", "max-width: 100%;")
}

// EmbedNode replaces a framed PDF with an embed element.
func EmbedNode(ref, _ string) *html.Node {
	return NewElement(atom.Embed, "src", ref, "type", "application/pdf", "style", "width:100%;height:100vh;")
}

// VideoNode synthesizes a playable video element around ref.
func VideoNode(ref, _ string) *html.Node {
	video := NewElement(atom.Video, "controls", "controls", "preload", "auto", "style", "width: 100%;")
	video.AppendChild(sourceNode(ref))
	return video
}

// AudioNode synthesizes an audio element around ref.
func AudioNode(ref, _ string) *html.Node {
	audio := NewElement(atom.Audio, "controls", "controls", "preload", "auto")
	audio.AppendChild(sourceNode(ref))
	return audio
}

func sourceNode(ref string) *html.Node {
	source := NewElement(atom.Source, "src", ref)
	if ct := mime.TypeByExtension(urlresolve.Ext(ref)); ct != "" {
		source.Attr = append(source.Attr, html.Attribute{Key: "type", Val: ct})
	}
	return source
}

// FrameNode replaces a node with an iframe showing ref.
func FrameNode(ref, _ string) *html.Node {
	return NewElement(atom.Iframe, "src", ref, "style", "width: 100%; height: 80vh; border: none;")
}
