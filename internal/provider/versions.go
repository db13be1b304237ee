package provider

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
)

const appStoreVersionClass = "whats-new__latest__version"

var webViewVersionPattern = regexp.MustCompile(`\b([0-9a-f]{40})\b.*revision_info_not_set"\),.*?="(\d+\.\d+\.\d+)`)

// Versions discovers the current NSO app and SplatNet web view versions.
type Versions struct {
	rc          RunContext
	client      *http.Client
	appStoreURL string
}

func NewVersions(rc RunContext, client *http.Client, appStoreURL string) *Versions {
	return &Versions{rc: rc, client: client, appStoreURL: appStoreURL}
}

// Resolve returns a copy of the run context with discovered versions. Any
// discovery failure keeps the configured value.
func (v *Versions) Resolve(ctx context.Context, discoverApp, discoverWebView bool) RunContext {
	var app, webView string

	if discoverApp {
		found, err := v.AppVersion(ctx)
		if err != nil {
			logEntry(ctx, StageVersions).WithError(err).Warnf("could not discover the app version, using %s", v.rc.AppVersion)
		} else {
			app = found
		}
	}

	if discoverWebView {
		found, err := v.WebViewVersion(ctx)
		if err != nil {
			logEntry(ctx, StageVersions).WithError(err).Warnf("could not discover the web view version, using %s", v.rc.WebViewVersion)
		} else {
			webView = found
		}
	}

	return v.rc.WithVersions(app, webView)
}

// AppVersion scrapes the App Store listing for the latest NSO app version.
// A listed version older than the configured one is ignored.
func (v *Versions) AppVersion(ctx context.Context) (string, error) {
	doc, err := v.fetchHTML(ctx, v.appStoreURL)
	if err != nil {
		return "", err
	}

	var text string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "p" && hasClass(n, appStoreVersionClass) {
			text = textContent(n)
			return false
		}
		return true
	})
	if text == "" {
		return "", errors.New("versions: app store page has no version element")
	}

	raw := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(text), "Version"))
	found, err := semver.NewVersion(raw)
	if err != nil {
		return "", errors.Wrapf(err, "versions: app store version %q", raw)
	}

	if configured, err := semver.NewVersion(v.rc.AppVersion); err == nil && found.LessThan(configured) {
		return v.rc.AppVersion, nil
	}

	return found.Original(), nil
}

// WebViewVersion reads the SplatNet home page, follows its main script and
// extracts "<version>-<revision prefix>".
func (v *Versions) WebViewVersion(ctx context.Context) (string, error) {
	home := v.rc.Endpoints.SplatNet + "/"
	doc, err := v.fetchHTML(ctx, home)
	if err != nil {
		return "", err
	}

	var src string
	walk(doc, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == "script" {
			if s := attr(n, "src"); strings.Contains(s, "static") {
				src = s
				return false
			}
		}
		return true
	})
	if src == "" {
		return "", errors.New("versions: splatnet home page has no static script")
	}

	base, err := url.Parse(home)
	if err != nil {
		return "", errors.Wrap(err, "versions: splatnet url")
	}
	ref, err := url.Parse(src)
	if err != nil {
		return "", errors.Wrapf(err, "versions: script src %q", src)
	}

	body, err := v.fetch(ctx, base.ResolveReference(ref).String(), "*/*")
	if err != nil {
		return "", err
	}

	return parseWebViewVersion(body)
}

func parseWebViewVersion(script []byte) (string, error) {
	m := webViewVersionPattern.FindSubmatch(script)
	if m == nil {
		return "", errors.New("versions: web view version not found in script")
	}
	return string(m[2]) + "-" + string(m[1][:8]), nil
}

func (v *Versions) fetchHTML(ctx context.Context, target string) (*html.Node, error) {
	body, err := v.fetch(ctx, target, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "versions: parse %s", target)
	}
	return doc, nil
}

func (v *Versions) fetch(ctx context.Context, target, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", v.rc.BrowserUserAgent)

	resp, body, err := send(v.client, req, StageVersions)
	if err != nil {
		return nil, err
	}
	if !isSuccess(resp.StatusCode) {
		return nil, protocolError(StageVersions, ErrorCodeUnexpectedStatus, "%s returned status %d", req.URL.Host, resp.StatusCode).WithStatus(resp.StatusCode)
	}
	return body, nil
}

// walk visits nodes depth first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		return true
	})
	return b.String()
}
