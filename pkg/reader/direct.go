package reader

import (
	"context"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/text/encoding/htmlindex"
)

var (
	titlePattern  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptPattern = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	tagPattern    = regexp.MustCompile(`(?s)<[^>]+>`)
	spacePattern  = regexp.MustCompile(`[ \t]+`)
	blankPattern  = regexp.MustCompile(`\n{3,}`)
)

// readDirect fetches the page itself and strips markup. Used when no reader
// API key is configured.
func (c *httpClient) readDirect(ctx context.Context, targetURL string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "reader: create request")
	}
	req.Header.Set("User-Agent", "research-brief/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "reader: fetch page")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, eris.Wrap(err, "reader: read page body")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: http.StatusText(resp.StatusCode)}
	}

	html, err := decodeCharset(body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}

	title := ""
	if m := titlePattern.FindStringSubmatch(html); len(m) > 1 {
		title = strings.TrimSpace(m[1])
	}

	return &Page{
		URL:     targetURL,
		Title:   title,
		Content: stripMarkup(html),
	}, nil
}

// decodeCharset converts the body to UTF-8 based on the Content-Type charset
// parameter. Unknown or missing charsets pass through unchanged.
func decodeCharset(body []byte, contentType string) (string, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return string(body), nil
	}

	charset, ok := params["charset"]
	if !ok || strings.EqualFold(charset, "utf-8") {
		return string(body), nil
	}

	enc, err := htmlindex.Get(charset)
	if err != nil {
		return string(body), nil
	}

	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "reader: decode charset %q", charset)
	}
	return string(decoded), nil
}

// stripMarkup removes script/style blocks and tags, collapsing whitespace.
func stripMarkup(html string) string {
	text := scriptPattern.ReplaceAllString(html, " ")
	text = tagPattern.ReplaceAllString(text, "\n")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = spacePattern.ReplaceAllString(text, " ")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			lines = append(lines, trimmed)
		}
	}
	out := strings.Join(lines, "\n")
	return blankPattern.ReplaceAllString(out, "\n\n")
}
