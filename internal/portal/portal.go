// Package portal retrieves report bundles from the CRM web portal.
package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"github.com/brensch/sitereports/internal/config"
	"github.com/brensch/sitereports/internal/util"

	"golang.org/x/net/html"
)

// ErrNoLinks is returned when the reports page has no download anchor.
var ErrNoLinks = errors.New("no download links found")

// Download is one file retrieved from the portal.
type Download struct {
	Filename string
	URL      string
	Data     []byte
}

// Source produces downloads. fn is called once per retrieved file, in page
// order; its errors are collected, not fatal.
type Source interface {
	Fetch(ctx context.Context, fn func(Download) error) error
}

var commonUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
	"Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
}

func randomUserAgent() string {
	return commonUserAgents[rand.IntN(len(commonUserAgents))]
}

// Client is an authenticated portal session.
type Client struct {
	cfg       config.Portal
	http      *http.Client
	userAgent string
	logger    *slog.Logger
}

// New returns a client with its own cookie jar.
func New(cfg config.Portal, logger *slog.Logger) (*Client, error) {
	hc, err := util.SessionHTTPClient(cfg.Timeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		cfg:       cfg,
		http:      hc,
		userAgent: randomUserAgent(),
		logger:    logger.With(slog.String("component", "portal")),
	}, nil
}

// Fetch logs in, discovers download links on the reports page and downloads
// each of them.
func (c *Client) Fetch(ctx context.Context, fn func(Download) error) error {
	if err := c.login(ctx); err != nil {
		return err
	}
	links, err := c.discover(ctx)
	if err != nil {
		return err
	}

	var fetchErr error
	for i, link := range links {
		if err := ctx.Err(); err != nil {
			return errors.Join(fetchErr, err)
		}
		l := c.logger.With(slog.String("url", link), slog.Int("link_num", i+1), slog.Int("total_links", len(links)))
		d, err := c.download(ctx, link)
		if err != nil {
			l.Warn("Download failed.", "error", err)
			fetchErr = errors.Join(fetchErr, err)
			continue
		}
		l.Debug("Downloaded file.", slog.String("filename", d.Filename), slog.Int("bytes", len(d.Data)))
		if err := fn(d); err != nil {
			fetchErr = errors.Join(fetchErr, fmt.Errorf("handle %s: %w", d.Filename, err))
		}
	}
	return fetchErr
}

func (c *Client) login(ctx context.Context) error {
	if c.cfg.LoginURL == "" {
		return nil
	}
	form := url.Values{}
	form.Set(c.cfg.LoginField, c.cfg.Login)
	form.Set(c.cfg.PasswordField, c.cfg.Password)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.LoginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("login POST %s: %w", c.cfg.LoginURL, err)
	}
	resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("login rejected: %s", resp.Status)
	}
	c.logger.Debug("Logged in to portal.", slog.String("status", resp.Status))
	return nil
}

func (c *Client) discover(ctx context.Context) ([]string, error) {
	base, err := url.Parse(c.cfg.ReportsURL)
	if err != nil {
		return nil, fmt.Errorf("parse reports url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.ReportsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create reports request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	body, _, err := util.DownloadFile(c.http, req)
	if err != nil {
		return nil, fmt.Errorf("load reports page: %w", err)
	}
	root, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse reports page: %w", err)
	}

	seen := make(map[string]bool)
	var links []string
	for _, href := range util.ParseLinks(root, util.HrefContains(c.cfg.LinkMarker)) {
		abs, err := base.Parse(href)
		if err != nil {
			c.logger.Warn("Failed to resolve relative link", "link", href, "error", err)
			continue
		}
		if s := abs.String(); !seen[s] {
			seen[s] = true
			links = append(links, s)
		}
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%w on %s", ErrNoLinks, c.cfg.ReportsURL)
	}
	c.logger.Info("Discovered download links.", slog.Int("count", len(links)))
	return links, nil
}

func (c *Client) download(ctx context.Context, link string) (Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return Download{}, fmt.Errorf("create request %s: %w", link, err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	data, header, err := util.DownloadFile(c.http, req)
	if err != nil {
		return Download{}, err
	}
	name := util.AttachmentName(header, req.URL.Path)
	if name == "" {
		return Download{}, fmt.Errorf("no filename for %s", link)
	}
	return Download{Filename: name, URL: link, Data: data}, nil
}
