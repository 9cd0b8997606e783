package handler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"path"
	"strconv"

	"github.com/PuerkitoBio/goquery"

	"github.com/jonesrussell/north-cloud/mirror/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/mirror/internal/archive"
	"github.com/jonesrussell/north-cloud/mirror/internal/degrade"
	"github.com/jonesrussell/north-cloud/mirror/internal/urlresolve"
)

const defaultSlideSelector = "img"

// ErrNoSlides is returned when a slideshow page has no usable images.
var ErrNoSlides = errors.New("slideshow: no slides found")

// Slideshow returns a Standalone descriptor that turns a page of slide images
// on one of hosts into a generated slideshow written to the slides directory.
func Slideshow(hosts []string, selector, source string) Descriptor {
	if selector == "" {
		selector = defaultSlideSelector
	}
	return Descriptor{
		Name:      NameSlideshow,
		Kind:      Standalone,
		Test:      HostIn(hosts...),
		Directory: archive.DirSlides,
		Fetch: func(ctx context.Context, env *Env, url string) (string, error) {
			return writeSlideshow(ctx, env, url, selector, source)
		},
		Node: FrameNode,
	}
}

type slideshowPage struct {
	Title       string
	Source      string
	SourceLabel string
	Slides      []slide
	Next        string
	Previous    string
	Fullscreen  string
	JumpTo      string
}

type slide struct {
	Src   string
	Label string
}

func writeSlideshow(ctx context.Context, env *Env, url, selector, source string) (string, error) {
	body, err := env.Reader.Read(ctx, url, env.LoadScripts)
	if err != nil {
		return "", ReadFailure(url, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", BrokenSource(url, fmt.Errorf("parse slideshow page: %w", err))
	}

	var srcs []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		src, ok := s.Attr("src")
		if !ok || urlresolve.IsSkippable(src) || urlresolve.IsData(src) {
			return
		}
		srcs = append(srcs, urlresolve.Resolve(url, src))
	})
	if len(srcs) == 0 {
		return "", BrokenSource(url, ErrNoSlides)
	}

	page := slideshowPage{
		Title:  doc.Find("title").First().Text(),
		Source: source,
	}
	if env.Messages != nil {
		page.SourceLabel = env.Messages.Message(degrade.KeyPresentationSource)
		page.Next = env.Messages.Message(degrade.KeyNext)
		page.Previous = env.Messages.Message(degrade.KeyPrevious)
		page.Fullscreen = env.Messages.Message(degrade.KeyToggleFullscreen)
		page.JumpTo = env.Messages.Message(degrade.KeyJumpTo)
	}

	for i, src := range srcs {
		ref, writeErr := WriteLeaf(ctx, env, src, archive.DirSlides, ".png")
		if writeErr != nil {
			env.logger().Warn("Skipping slide",
				logger.String("url", src),
				logger.Error(writeErr))
			continue
		}
		label := strconv.Itoa(i + 1)
		if env.Messages != nil {
			label = env.Messages.SlideLabel(i + 1)
		}
		// The page lives in the slides directory next to its images.
		page.Slides = append(page.Slides, slide{Src: path.Base(ref), Label: label})
	}
	if len(page.Slides) == 0 {
		return "", BrokenSource(url, ErrNoSlides)
	}

	var buf bytes.Buffer
	if execErr := slideshowTmpl.Execute(&buf, page); execErr != nil {
		return "", BrokenSource(url, fmt.Errorf("render slideshow: %w", execErr))
	}

	ref, err := env.Writer.WriteText(ctx, archive.DirSlides, urlresolve.Filename(url, ".html"), buf.String())
	if err != nil {
		return "", BrokenSource(url, fmt.Errorf("write slideshow: %w", err))
	}
	return ref, nil
}

func (e *Env) logger() logger.Logger {
	if e.Logger == nil {
		return logger.NewNop()
	}
	return e.Logger
}

var slideshowTmpl = template.Must(template.New("slideshow").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { margin: 0; background-color: #252525; overflow: hidden; }
#gallery { display: block; margin: auto; max-width: 100vw; max-height: calc(100vh - 43px); }
#navigation { background-color: #353535; text-align: center; height: 33px; width: 100vw; }
#navigation button { background-color: transparent; border: none; color: white; width: 75px; font-size: 16pt; cursor: pointer; }
#navigation-menu { display: none; position: absolute; bottom: 33px; left: 0; right: 0; max-height: 70vh; overflow-y: auto; background: white; list-style: none; margin: 0; padding: 0; }
#navigation-menu li { font-family: sans-serif; text-align: left; padding: 10px 25px; cursor: pointer; }
#navigation-menu img { width: 150px; vertical-align: middle; margin-right: 20px; }
#progress { background-color: #4E4E4E; width: 100vw; height: 10px; }
#progressbar { background-color: #999; height: 10px; }
</style>
</head>
<body>
<img id="gallery" alt="{{.Title}}">
<div id="progress"><div id="progressbar"></div></div>
<div id="navigation">
<button id="prev-btn" title="{{.Previous}}" onclick="updateImage(-1)">&#x1F850;</button>
<button id="next-btn" style="float: right;" title="{{.Next}}" onclick="updateImage(1)">&#x1F852;</button>
<a id="fullscreen" style="float: right; color: white; font-size: 15pt; padding: 5px; cursor: pointer;" title="{{.Fullscreen}}" onclick="toggleFullScreen()">&#x2922;</a>
{{if .Source}}<div id="attribution" style="float: left; margin-top: 3px; color: white; font-family: sans-serif; font-size: 7pt;">{{.SourceLabel}} <span style="font-size: 12pt;">{{.Source}}</span></div>{{end}}
<span id="counter" style="color: white; cursor: pointer; font-family: sans-serif;" title="{{.JumpTo}}" onclick="openDropdown(event)"></span>
<ul id="navigation-menu">
{{range $i, $s := .Slides}}<li onclick="jumpToImage({{$i}})"><img class="slide" src="{{$s.Src}}">{{$s.Label}}</li>
{{end}}</ul>
</div>
<script>
let images = [{{range $i, $s := .Slides}}{{if $i}}, {{end}}{{$s.Src}}{{end}}];
let index = 0;
let menuExpanded = false;
let img = document.getElementById('gallery');
let prevbutton = document.getElementById('prev-btn');
let nextbutton = document.getElementById('next-btn');
let countText = document.getElementById('counter');
let bar = document.getElementById('progressbar');
let menu = document.getElementById('navigation-menu');
function updateImage(step) {
  if (index + step >= 0 && index + step < images.length) { index += step; }
  jumpToImage(index);
}
function jumpToImage(i) {
  index = i;
  countText.innerHTML = (index + 1) + ' / ' + images.length;
  img.setAttribute('src', images[index]);
  (index === 0) ? prevbutton.setAttribute('disabled', 'disabled') : prevbutton.removeAttribute('disabled');
  (index === images.length - 1) ? nextbutton.setAttribute('disabled', 'disabled') : nextbutton.removeAttribute('disabled');
  bar.setAttribute('style', 'width:' + ((index + 1) / images.length * 100) + '%;');
}
function toggleFullScreen() {
  if (!document.fullscreenElement) { document.documentElement.requestFullscreen(); }
  else if (document.exitFullscreen) { document.exitFullscreen(); }
}
function openDropdown(event) {
  event.stopPropagation();
  menuExpanded = !menuExpanded;
  menu.style.display = menuExpanded ? 'block' : 'none';
}
document.body.addEventListener('click', function () { menuExpanded = false; menu.style.display = 'none'; });
updateImage(0);
</script>
</body>
</html>
`))
