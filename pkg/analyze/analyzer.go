// Package analyze inspects a website's markup to report the capabilities
// and selectors the planner uses to tune its action plans.
package analyze

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/odvcencio/webrunner/pkg/logging"
)

// maxBodyBytes caps how much HTML a single analysis will read.
const maxBodyBytes = 5 << 20

// Analysis describes the structure and capabilities detected on a page.
type Analysis struct {
	URL                string            `json:"url"`
	Title              string            `json:"title"`
	HasLogin           bool              `json:"has_login"`
	HasSearch          bool              `json:"has_search"`
	HasCart            bool              `json:"has_cart"`
	DetectedFrameworks []string          `json:"detected_frameworks"`
	CommonSelectors    map[string]string `json:"common_selectors"`
	MobileFriendly     bool              `json:"mobile_friendly"`
}

// Analyzer fetches and inspects pages. Safe for concurrent use.
type Analyzer struct {
	client *http.Client
	logger *logging.Logger
}

func New(logger *logging.Logger) *Analyzer {
	return &Analyzer{
		client: &http.Client{Timeout: 30 * time.Second},
		logger: logger,
	}
}

// Analyze fetches the page at url and inspects its markup.
func (a *Analyzer) Analyze(ctx context.Context, url string) (*Analysis, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build analysis request: %w", err)
	}
	req.Header.Set("User-Agent", "webrunner-analyzer/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	analysis, err := a.AnalyzeHTML(url, io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	a.logger.Info(logging.CategoryAnalyzer, "website_analyzed", "",
		fmt.Sprintf("analyzed %s", url),
		map[string]any{
			"title":      analysis.Title,
			"has_login":  analysis.HasLogin,
			"has_search": analysis.HasSearch,
			"has_cart":   analysis.HasCart,
			"frameworks": analysis.DetectedFrameworks,
		})
	return analysis, nil
}

// AnalyzeHTML inspects already-fetched markup. Split out from Analyze so
// callers holding a rendered DOM snapshot can reuse the detectors.
func (a *Analyzer) AnalyzeHTML(url string, body io.Reader) (*Analysis, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}

	return &Analysis{
		URL:                url,
		Title:              strings.TrimSpace(doc.Find("title").First().Text()),
		HasLogin:           detectLogin(doc),
		HasSearch:          detectSearch(doc),
		HasCart:            detectCart(doc),
		DetectedFrameworks: detectFrameworks(doc),
		CommonSelectors:    commonSelectors(doc),
		MobileFriendly:     doc.Find("meta[name='viewport']").Length() > 0,
	}, nil
}

func detectLogin(doc *goquery.Document) bool {
	selectors := []string{
		"input[type='password']",
		"input[name*='password']",
		".login",
		"#login",
	}
	return anyMatch(doc, selectors) || hasTextMatch(doc, "button, a", "login")
}

func detectSearch(doc *goquery.Document) bool {
	selectors := []string{
		"input[type='search']",
		"input[name*='search']",
		"input[placeholder*='search']",
		".search",
		"#search",
	}
	return anyMatch(doc, selectors)
}

func detectCart(doc *goquery.Document) bool {
	selectors := []string{
		".cart",
		"#cart",
		"[data-testid*='cart']",
	}
	return anyMatch(doc, selectors) || hasTextMatch(doc, "button, a", "cart")
}

// frameworkMarkers pairs a framework name with DOM evidence: an attribute
// selector left by the framework at render time, or a script/link asset
// name. Static markup cannot probe window globals, so asset names stand in.
var frameworkMarkers = []struct {
	name     string
	selector string
	asset    string
}{
	{"React", "[data-reactroot]", "react"},
	{"Vue", "[data-v-app]", "vue"},
	{"Angular", "[ng-version]", "angular"},
	{"jQuery", "", "jquery"},
	{"Bootstrap", "", "bootstrap"},
}

func detectFrameworks(doc *goquery.Document) []string {
	assets := []string{}
	doc.Find("script[src]").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			assets = append(assets, strings.ToLower(src))
		}
	})
	doc.Find("link[href]").Each(func(_ int, s *goquery.Selection) {
		if href, ok := s.Attr("href"); ok {
			assets = append(assets, strings.ToLower(href))
		}
	})

	frameworks := []string{}
	for _, marker := range frameworkMarkers {
		if marker.selector != "" && doc.Find(marker.selector).Length() > 0 {
			frameworks = append(frameworks, marker.name)
			continue
		}
		for _, asset := range assets {
			if strings.Contains(asset, marker.asset) {
				frameworks = append(frameworks, marker.name)
				break
			}
		}
	}
	return frameworks
}

func commonSelectors(doc *goquery.Document) map[string]string {
	candidates := map[string][]string{
		"search_input": {"input[type='search']", "input[name*='search']", ".search-input"},
		"login_button": {".login-btn", "#login", "button[type='submit']"},
		"cart_button":  {".cart-btn", "#cart", "[data-testid*='cart']"},
		"menu_button":  {".menu-btn", "#menu", "nav button"},
	}

	selectors := map[string]string{}
	for name, list := range candidates {
		for _, selector := range list {
			if doc.Find(selector).Length() > 0 {
				selectors[name] = selector
				break
			}
		}
	}
	return selectors
}

func anyMatch(doc *goquery.Document, selectors []string) bool {
	for _, selector := range selectors {
		if doc.Find(selector).Length() > 0 {
			return true
		}
	}
	return false
}

func hasTextMatch(doc *goquery.Document, selector, text string) bool {
	found := false
	doc.Find(selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(s.Text()), text) {
			found = true
			return false
		}
		return true
	})
	return found
}
